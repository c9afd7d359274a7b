package identity

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fullcount-labs/athlete-cli/internal/model"
)

// ErrIntakeCanceled is returned when the operator cancels an intake prompt.
// The resolver leaves the sighting unresolved and moves on.
var ErrIntakeCanceled = eris.New("identity: intake canceled")

// IntakeRequest describes the sighting a human is being asked about.
type IntakeRequest struct {
	SourceSystem  string
	SourceLocalID string
	RawName       string
}

// IntakeResult carries the confirmed name and any demographics the operator
// supplied.
type IntakeResult struct {
	Name         string
	Demographics model.Demographics
}

// Intake collects or confirms athlete details from a human before a record
// is created.
type Intake interface {
	Collect(ctx context.Context, req IntakeRequest) (IntakeResult, error)
}

// cancelWord aborts any prompt.
const cancelWord = "cancel"

// TerminalIntake prompts on a terminal. Every prompt accepts "cancel" to
// abandon the sighting; empty answers to optional fields leave them unset.
type TerminalIntake struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewTerminalIntake builds a TerminalIntake reading from in and prompting
// on out.
func NewTerminalIntake(in io.Reader, out io.Writer) *TerminalIntake {
	return &TerminalIntake{in: bufio.NewScanner(in), out: out}
}

// Collect prompts for a confirmed name and optional demographics.
func (t *TerminalIntake) Collect(ctx context.Context, req IntakeRequest) (IntakeResult, error) {
	fmt.Fprintf(t.out, "\nNew athlete from %s (local id %s)\n", req.SourceSystem, req.SourceLocalID)
	if req.RawName != "" {
		fmt.Fprintf(t.out, "Source name: %q\n", req.RawName)
	}

	name, err := t.prompt(ctx, "Full name (enter to accept source name): ")
	if err != nil {
		return IntakeResult{}, err
	}
	if name == "" {
		name = req.RawName
	}
	if strings.TrimSpace(name) == "" {
		return IntakeResult{}, ErrIntakeCanceled
	}

	res := IntakeResult{Name: name}

	dob, err := t.prompt(ctx, "Date of birth YYYY-MM-DD (optional): ")
	if err != nil {
		return IntakeResult{}, err
	}
	if dob != "" {
		d, perr := time.Parse("2006-01-02", dob)
		if perr != nil {
			fmt.Fprintf(t.out, "unrecognized date %q, leaving blank\n", dob)
		} else {
			res.Demographics.DateOfBirth = &d
		}
	}

	gender, err := t.prompt(ctx, "Gender (optional): ")
	if err != nil {
		return IntakeResult{}, err
	}
	if gender != "" {
		res.Demographics.Gender = &gender
	}

	height, err := t.promptFloat(ctx, "Height in cm (optional): ")
	if err != nil {
		return IntakeResult{}, err
	}
	res.Demographics.HeightCM = height

	weight, err := t.promptFloat(ctx, "Weight in kg (optional): ")
	if err != nil {
		return IntakeResult{}, err
	}
	res.Demographics.WeightKG = weight

	email, err := t.prompt(ctx, "Email (optional): ")
	if err != nil {
		return IntakeResult{}, err
	}
	if email != "" {
		res.Demographics.Email = &email
	}

	return res, nil
}

func (t *TerminalIntake) prompt(ctx context.Context, msg string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "identity: intake")
	}
	fmt.Fprint(t.out, msg)
	if !t.in.Scan() {
		if err := t.in.Err(); err != nil {
			return "", eris.Wrap(err, "identity: read intake input")
		}
		return "", ErrIntakeCanceled // EOF
	}
	line := strings.TrimSpace(t.in.Text())
	if strings.EqualFold(line, cancelWord) {
		return "", ErrIntakeCanceled
	}
	return line, nil
}

func (t *TerminalIntake) promptFloat(ctx context.Context, msg string) (*float64, error) {
	line, err := t.prompt(ctx, msg)
	if err != nil {
		return nil, err
	}
	if line == "" {
		return nil, nil
	}
	v, perr := strconv.ParseFloat(line, 64)
	if perr != nil {
		fmt.Fprintf(t.out, "not a number: %q, leaving blank\n", line)
		return nil, nil
	}
	return &v, nil
}
