package identity

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalIntake_Collect(t *testing.T) {
	in := strings.NewReader("Ryan Weiss\n2001-04-12\nM\n188\n92.5\n\n")
	var out bytes.Buffer
	intake := NewTerminalIntake(in, &out)

	res, err := intake.Collect(context.Background(), IntakeRequest{
		SourceSystem: "hittrax", SourceLocalID: "P1", RawName: "weiss, r 3/14",
	})
	require.NoError(t, err)

	assert.Equal(t, "Ryan Weiss", res.Name)
	require.NotNil(t, res.Demographics.DateOfBirth)
	assert.Equal(t, "2001-04-12", res.Demographics.DateOfBirth.Format("2006-01-02"))
	require.NotNil(t, res.Demographics.Gender)
	assert.Equal(t, "M", *res.Demographics.Gender)
	require.NotNil(t, res.Demographics.HeightCM)
	assert.Equal(t, 188.0, *res.Demographics.HeightCM)
	require.NotNil(t, res.Demographics.WeightKG)
	assert.Equal(t, 92.5, *res.Demographics.WeightKG)
	assert.Nil(t, res.Demographics.Email)

	assert.Contains(t, out.String(), "hittrax")
}

func TestTerminalIntake_EmptyNameAcceptsSourceName(t *testing.T) {
	in := strings.NewReader("\n\n\n\n\n\n")
	var out bytes.Buffer
	intake := NewTerminalIntake(in, &out)

	res, err := intake.Collect(context.Background(), IntakeRequest{RawName: "Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", res.Name)
	assert.True(t, res.Demographics.Empty())
}

func TestTerminalIntake_Cancel(t *testing.T) {
	for _, input := range []string{"cancel\n", "CANCEL\n", "Ryan Weiss\ncancel\n"} {
		intake := NewTerminalIntake(strings.NewReader(input), &bytes.Buffer{})
		_, err := intake.Collect(context.Background(), IntakeRequest{RawName: "x"})
		assert.True(t, eris.Is(err, ErrIntakeCanceled), "input %q", input)
	}
}

func TestTerminalIntake_EOFCancels(t *testing.T) {
	intake := NewTerminalIntake(strings.NewReader(""), &bytes.Buffer{})
	_, err := intake.Collect(context.Background(), IntakeRequest{})
	assert.True(t, eris.Is(err, ErrIntakeCanceled))
}

func TestTerminalIntake_BadValuesLeftBlank(t *testing.T) {
	in := strings.NewReader("Jane Doe\nnot-a-date\n\nseventy\n\n\n\n")
	var out bytes.Buffer
	intake := NewTerminalIntake(in, &out)

	res, err := intake.Collect(context.Background(), IntakeRequest{})
	require.NoError(t, err)
	assert.Nil(t, res.Demographics.DateOfBirth)
	assert.Nil(t, res.Demographics.HeightCM)
	assert.Contains(t, out.String(), "leaving blank")
}
