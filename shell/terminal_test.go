// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package shell

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
)

type conn struct {
	io.Reader
	io.Writer
}

func init() {
	Add(Cmd{
		Name:    "echo",
		Args:    1,
		Pattern: regexp.MustCompile(`^echo (.*)$`),
		Syntax:  "<text>",
		Help:    "echo text",
		Fn: func(_ *Interface, arg []string) (string, error) {
			return arg[0], nil
		},
	})

	Add(Cmd{
		Name: "fail",
		Help: "failing command",
		Fn: func(_ *Interface, _ []string) (string, error) {
			return "", errors.New("failure")
		},
	})

	Add(Cmd{
		Name: "quit",
		Help: "close session",
		Fn: func(_ *Interface, _ []string) (string, error) {
			return "", io.EOF
		},
	})
}

func TestExec(t *testing.T) {
	var buf bytes.Buffer
	var transcript bytes.Buffer

	iface := &Interface{Log: &transcript}

	if err := iface.Exec("echo hello world", &buf); err != nil {
		t.Fatal(err)
	}

	if got := buf.String(); got != "hello world\n" {
		t.Errorf("unexpected output %q", got)
	}

	if got := transcript.String(); got != "> echo hello world\n" {
		t.Errorf("unexpected transcript %q", got)
	}

	if err := iface.Exec("echo", &buf); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("missing argument, unexpected error %v", err)
	}

	if err := iface.Exec("nope", &buf); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown command, unexpected error %v", err)
	}

	if err := iface.Exec("fail", &buf); err == nil || err.Error() != "failure" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestHelp(t *testing.T) {
	iface := &Interface{}

	help, err := iface.Help(iface, nil)

	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"echo", "fail", "help", "quit"} {
		if !strings.Contains(help, name) {
			t.Errorf("help is missing %s", name)
		}
	}

	if strings.Index(help, "echo") > strings.Index(help, "help") {
		t.Errorf("help is not sorted\n%s", help)
	}
}

func TestRemove(t *testing.T) {
	var buf bytes.Buffer

	Add(Cmd{
		Name: "tmp",
		Fn: func(_ *Interface, _ []string) (string, error) {
			return "tmp", nil
		},
	})

	iface := &Interface{}

	if err := iface.Exec("tmp", &buf); err != nil {
		t.Fatal(err)
	}

	Remove("tmp")

	if err := iface.Exec("tmp", &buf); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestStart(t *testing.T) {
	var out bytes.Buffer

	iface := &Interface{
		Banner: "go-uefi test",
		ReadWriter: &conn{
			Reader: strings.NewReader("echo first\rbogus\rfail\rquit\recho second\r"),
			Writer: &out,
		},
	}

	iface.Start()

	res := out.String()

	for _, s := range []string{
		"go-uefi test",
		"first\n",
		"command error, " + ErrUnknownCommand.Error(),
		"command error, failure",
	} {
		if !strings.Contains(res, s) {
			t.Errorf("output is missing %q\n%s", s, res)
		}
	}

	if strings.Contains(res, "second\n") {
		t.Errorf("command executed after session end\n%s", res)
	}
}
