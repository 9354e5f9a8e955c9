package console

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/outofsight/internal/common"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var errPassphraseMismatch = errors.New("passphrases do not match")

// readPassphrase prompts on w and reads a passphrase from the terminal
// without echo. With confirm set it is asked for twice.
func readPassphrase(w io.Writer, confirm bool) ([]byte, error) {
	pass, err := promptPassword(w, "Passphrase: ")
	if err != nil {
		return nil, err
	}
	if len(pass) == 0 {
		return nil, errors.New("empty passphrase")
	}
	if !confirm {
		return pass, nil
	}

	again, err := promptPassword(w, "Repeat passphrase: ")
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(again)

	if !bytes.Equal(pass, again) {
		common.WipeByteArray(pass)
		return nil, errPassphraseMismatch
	}
	return pass, nil
}

func promptPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return pw, nil
}
