// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword prompts on the command's stderr. Terminal input is read
// without echo; other input is read one line at a time.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	cmd.PrintErr(prompt)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		cmd.PrintErrln()
		if err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		return string(b), nil
	}

	line, err := lineReader(cmd).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// lineReaders keeps one buffered reader per input so consecutive prompts
// don't lose buffered lines.
var lineReaders = map[io.Reader]*bufio.Reader{}

func lineReader(cmd *cobra.Command) *bufio.Reader {
	in := cmd.InOrStdin()
	r, ok := lineReaders[in]
	if !ok {
		r = bufio.NewReader(in)
		lineReaders[in] = r
	}
	return r
}

// promptNewPassword asks for a password twice and requires both to match.
func promptNewPassword(cmd *cobra.Command, deps Deps, prompt string) (string, error) {
	first, err := deps.ReadPassword(cmd, prompt)
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", oops.Code("PASSWORD_EMPTY").Errorf("password cannot be empty")
	}
	second, err := deps.ReadPassword(cmd, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", oops.Code("PASSWORD_MISMATCH").Errorf("passwords do not match")
	}
	return first, nil
}
