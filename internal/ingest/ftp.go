package ingest

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fullcount-labs/athlete-cli/internal/config"
)

// FTPDrop pulls instrument exports off an FTP drop directory. Several of
// the capture rigs can only push their nightly exports to an FTP share.
type FTPDrop struct {
	cfg     config.FTPConfig
	timeout time.Duration
}

// NewFTPDrop creates an FTPDrop for the configured share.
func NewFTPDrop(cfg config.FTPConfig) *FTPDrop {
	return &FTPDrop{cfg: cfg, timeout: 30 * time.Second}
}

func (d *FTPDrop) connect(ctx context.Context) (*ftp.ServerConn, error) {
	host := d.cfg.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(d.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp: dial")
	}

	user, pass := d.cfg.User, d.cfg.Password
	if user == "" {
		user, pass = "anonymous", "anonymous@"
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "ftp: login")
	}
	return conn, nil
}

// List returns the export file names currently in the drop directory.
func (d *FTPDrop) List(ctx context.Context) ([]string, error) {
	conn, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.List(d.cfg.Dir)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: list %s", d.cfg.Dir)
	}

	var names []string
	for _, e := range entries {
		if e.Type == ftp.EntryTypeFile {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// Download retrieves one file from the drop into destDir and returns the
// local path.
func (d *FTPDrop) Download(ctx context.Context, name, destDir string) (string, error) {
	conn, err := d.connect(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Quit()

	remote := filepath.ToSlash(filepath.Join(d.cfg.Dir, name))
	zap.L().Debug("ftp: downloading", zap.String("remote", remote))

	resp, err := conn.Retr(remote)
	if err != nil {
		return "", eris.Wrapf(err, "ftp: retrieve %s", remote)
	}
	defer resp.Close()

	local := filepath.Join(destDir, name)
	f, err := os.Create(local)
	if err != nil {
		return "", eris.Wrapf(err, "ftp: create %s", local)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp); err != nil {
		return "", eris.Wrapf(err, "ftp: write %s", local)
	}
	return local, nil
}
