// Manual PTY smoke test: spawns a shell, runs a command, reports the exit
// code. Not part of the automated suite.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/acmattson3/mqtt-shell/internal/pty"
)

func main() {
	fmt.Println("Spawning shell...")

	sh, err := pty.Start(pty.Options{Rows: 24, Cols: 80})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error spawning shell: %v\n", err)
		os.Exit(1)
	}
	defer sh.Close()

	fmt.Printf("Shell running: %s\n", sh.Path())

	// Mirror everything the shell prints.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := sh.Read(buf)
			if n > 0 {
				os.Stdout.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	time.Sleep(200 * time.Millisecond)

	fmt.Println("\nSending: echo pty_ok")
	if _, err := sh.Write([]byte("echo pty_ok\n")); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		os.Exit(1)
	}

	time.Sleep(300 * time.Millisecond)

	fmt.Println("\nSending: exit")
	if _, err := sh.Write([]byte("exit\n")); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nShell exited with code %d\n", sh.WaitExit())
}
