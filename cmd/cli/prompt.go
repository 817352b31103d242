package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Terminal seams, replaced in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// passwordArg returns the -p value, or reads it from the terminal without echo.
func passwordArg(val, prompt string, w io.Writer) (string, error) {
	if val != "" {
		return val, nil
	}
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return "", errors.New("need -p")
	}
	fmt.Fprint(w, prompt)
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(pw))
	if s == "" {
		return "", errors.New("empty password")
	}
	return s, nil
}
