// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && net

package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"log"
	"regexp"

	"github.com/gliderlabs/ssh"
	gossh "golang.org/x/crypto/ssh"

	"github.com/usbarmory/go-uefi/shell"
)

func init() {
	shell.Add(shell.Cmd{
		Name:    "ssh",
		Args:    1,
		Pattern: regexp.MustCompile(`^ssh (\d+)$`),
		Syntax:  "<port>",
		Help:    "start SSH shell server (requires `net`)",
		Fn:      sshCmd,
	})
}

func sessionHandler(s ssh.Session) {
	iface := &shell.Interface{
		Banner:     Banner,
		ReadWriter: s,
	}

	if _, _, isPty := s.Pty(); isPty {
		iface.VT100 = true
	}

	log.Printf("ssh session from %s", s.RemoteAddr())
	iface.Start()
	log.Printf("ssh session from %s closed", s.RemoteAddr())
}

func sshCmd(_ *shell.Interface, arg []string) (res string, err error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)

	if err != nil {
		return "", fmt.Errorf("could not generate host key, %v", err)
	}

	signer, err := gossh.NewSignerFromKey(key)

	if err != nil {
		return "", fmt.Errorf("could not create host key signer, %v", err)
	}

	srv := &ssh.Server{
		Addr:    ":" + arg[0],
		Handler: sessionHandler,
	}

	srv.AddHostKey(signer)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("ssh server error, %v", err)
		}
	}()

	return fmt.Sprintf("ssh server started on port %s (host key %s)",
		arg[0], gossh.FingerprintSHA256(signer.PublicKey())), nil
}
