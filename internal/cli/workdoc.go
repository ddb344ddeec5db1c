package cli

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/roach88/minisync/internal/kvdoc"
)

// DefaultDocFile is the working document file used without --doc.
const DefaultDocFile = "minisync-doc.json"

// loadWorkDoc reads the local replica from path.
func loadWorkDoc(path string) (*kvdoc.Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewExitError(ExitCommandError,
				"working document "+path+" not found (run init, restore or import first)")
		}
		return nil, WrapExitError(ExitCommandError, "failed to read working document", err)
	}
	d, err := kvdoc.UnmarshalState(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to decode working document", err)
	}
	return d, nil
}

// storeWorkDoc replaces the file at path with d's state. The write goes
// through a temporary file so a crash never leaves a truncated replica.
func storeWorkDoc(path string, d *kvdoc.Doc) error {
	data, err := d.MarshalState()
	if err != nil {
		return errors.Wrap(err, "encode working document")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "write working document")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write working document")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "write working document")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "write working document")
}

// checkOverwrite refuses to replace an existing working document unless
// force is set.
func checkOverwrite(path string, force bool) error {
	if force {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return NewExitError(ExitCommandError, "working document "+path+" already exists (use --force to replace it)")
	}
	return nil
}
