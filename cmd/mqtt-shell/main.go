// mqtt-shell attaches to a shell session shared over an MQTT broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/acmattson3/mqtt-shell/internal/adapters/realclock"
	"github.com/acmattson3/mqtt-shell/internal/adapters/realmqtt"
	"github.com/acmattson3/mqtt-shell/internal/adapters/realprompt"
	"github.com/acmattson3/mqtt-shell/internal/adapters/realterm"
	"github.com/acmattson3/mqtt-shell/internal/client"
	"github.com/acmattson3/mqtt-shell/internal/config"
	"github.com/acmattson3/mqtt-shell/internal/logging"
	"github.com/acmattson3/mqtt-shell/internal/protocol"
	"github.com/acmattson3/mqtt-shell/internal/security"
)

// Version information - set at build time.
var (
	Version   = "0.3.1"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] [mqtt-user@]session-id@broker-host\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	// Wrapped so deferred credential wipes run before the process exits.
	os.Exit(run())
}

func run() int {
	var (
		port           int
		connectTimeout time.Duration
		authTimeout    time.Duration
		noKeyring      bool
		logLevel       string
		showVersion    bool
	)

	flag.Usage = usage
	flag.IntVar(&port, "port", 0, "Broker port (default MQTT_PORT or 1883)")
	flag.DurationVar(&connectTimeout, "connect-timeout", client.DefaultConnectTimeout, "Broker connect timeout")
	flag.DurationVar(&authTimeout, "auth-timeout", client.DefaultAuthTimeout, "Wait this long for the agent's auth verdict")
	flag.BoolVar(&noKeyring, "no-keyring", false, "Do not cache credentials in the OS keyring")
	flag.StringVar(&logLevel, "log-level", "error", "Log level: debug, info, warn, error")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("mqtt-shell version %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return 0
	}

	if flag.NArg() != 1 {
		usage()
		return client.ExitUsage
	}

	// Logs share stderr with status lines; default to errors only so raw
	// mode stays readable.
	logging.Setup(logLevel, true)

	target, err := client.ParseTarget(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return client.ExitUsage
	}

	if port == 0 {
		if v := os.Getenv(config.EnvBrokerPort); v != "" {
			port, err = strconv.Atoi(v)
			if err != nil || port < 1 || port > 65535 {
				fmt.Fprintf(os.Stderr, "Error: invalid %s value %q\n", config.EnvBrokerPort, v)
				return client.ExitUsage
			}
		} else {
			port = 1883
		}
	}

	keyring := security.NewKeyringStore()
	if noKeyring {
		keyring.SetEnabled(false)
	}
	creds := &client.CredentialSource{
		Prompter: realprompt.New(),
		Keyring:  keyring,
	}

	// Resolve credentials: target, then environment, keyring, prompt.
	user := target.User
	if user == "" {
		user, err = creds.Username()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return client.ExitTransport
		}
	}

	brokerPass, err := creds.BrokerPassword(target.Host, user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return client.ExitTransport
	}
	defer security.WipeBytes(brokerPass)

	secret, err := creds.AgentSecret(target.Host, target.SessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return client.ExitTransport
	}
	defer security.WipeBytes(secret)

	broker := config.BrokerConfig{Host: target.Host, Port: port}
	transport := realmqtt.New(realmqtt.Options{
		BrokerURL: broker.URL(),
		ClientID:  protocol.ClientID(uuid.NewString()[:8]),
		Username:  user,
		Password:  string(brokerPass),
	})

	c, err := client.New(client.Options{
		Transport:      transport,
		Terminal:       realterm.New(),
		Clock:          realclock.New(),
		SessionID:      target.SessionID,
		Stdin:          os.Stdin,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		ConnectTimeout: connectTimeout,
		AuthTimeout:    authTimeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return client.ExitUsage
	}

	// Raw mode turns tty signals off, but SIGTERM from outside and SIGHUP
	// from a dying terminal still need the restore path to run.
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigChan
		cancel()
	}()

	code, err := c.Run(ctx, secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	if code == client.ExitAuthRejected {
		// A refused secret must not be replayed from the cache next time.
		creds.ForgetAgentSecret(target.Host, target.SessionID)
	}
	return code
}
