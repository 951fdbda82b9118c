package login

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sidkik/nowsync/cmd/util"
	"github.com/sidkik/nowsync/pkg/config"
	"github.com/sidkik/nowsync/pkg/errors"
	"github.com/sidkik/nowsync/pkg/remote"
)

// userTable is queried to check the credentials.
const userTable = "sys_user"

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	stdin           io.Reader = os.Stdin
	readPassword              = readPasswordImpl
	parseConnection           = config.ParseConnection
	writeConnection           = config.WriteConnection
	newClient                 = remote.New
)

// Options are the settings that can be passed as flags instead of being
// prompted for.
type Options struct {
	Instance string
	User     string
}

// New creates a new `login` command.
func New() *cobra.Command {
	var opts Options
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Set the instance and the credentials used by the workspace",
		Run: func(cmd *cobra.Command, _ []string) {
			ws, err := util.GetWorkspace(cmd)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "get workspace"))
			}

			ctx, cancel := util.SignalContext()
			defer cancel()

			if err := Main(ctx, ws, opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&opts.Instance, "instance", "",
		"The instance name, such as `dev1234`, or URL. "+
			"Optional: If not set, `nowsync login` will interactively prompt.")
	cmd.Flags().StringVar(&opts.User, "user", "",
		"The user name on the instance. "+
			"Optional: If not set, `nowsync login` will interactively prompt.")
	return cmd
}

// Main asks for the missing connection settings, checks them against the
// instance, and saves them to the workspace.
func Main(ctx context.Context, ws config.Workspace, opts Options) error {
	reader := bufio.NewReader(stdin)

	instance := opts.Instance
	if instance == "" {
		var currInstance string
		if conn, err := parseConnection(ws); err == nil {
			currInstance = conn.InstanceURL
		} else {
			log.WithError(err).Debug("Failed to read current connection")
		}

		resp, err := promptUser(reader,
			"Enter the instance to sync with.\n"+
				"Either the instance name, such as `dev1234`, or its URL.",
			"Instance", currInstance)
		if err != nil {
			return errors.WithContext(err, "read instance")
		}
		instance = resp
	}
	if instance == "" {
		return errors.NewFriendlyError("An instance is required.")
	}

	user := opts.User
	if user == "" {
		resp, err := promptUser(reader, "Enter your user name on the instance.", "User", "")
		if err != nil {
			return errors.WithContext(err, "read user")
		}
		user = resp
	}

	fmt.Fprint(stdout, "Password: ")
	password, err := readPassword(reader)
	fmt.Fprintln(stdout)
	if err != nil {
		return errors.WithContext(err, "read password")
	}

	conn := config.Connection{
		InstanceURL:   config.NormalizeInstanceURL(instance),
		InstanceLabel: instance,
		BasicAuth:     config.BasicAuthHeader(user, password),
	}
	client, err := newClient(remote.Config{
		InstanceURL:   conn.InstanceURL,
		Authorization: conn.BasicAuth,
	})
	if err != nil {
		return errors.WithContext(err, "create client")
	}

	if err := verifyCredentials(ctx, client, user); err != nil {
		if errors.IsNotAuthenticated(err) {
			return errors.ErrNotAuthenticated
		}
		return errors.WithContext(err, "verify credentials")
	}

	if err := writeConnection(ws, conn); err != nil {
		return errors.WithContext(err, "write config")
	}

	fmt.Fprintf(stdout, "Successfully logged in to %s.\n", conn.InstanceURL)
	return nil
}

// verifyCredentials makes a cheap request that only succeeds if the
// credentials are valid.
func verifyCredentials(ctx context.Context, client remote.Client, user string) error {
	_, err := client.List(ctx, userTable, remote.ListOptions{
		Query:  "user_name=" + user,
		Fields: []string{"user_name"},
		Limit:  1,
	})
	return err
}

func readPasswordImpl(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		return string(password), err
	}

	// Passwords can be piped in when there's no terminal.
	password, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(password, "\r\n"), nil
}

func promptUser(reader *bufio.Reader, helpString, prompt, currAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(stdout)

	options := []string{}
	if currAnswer != "" {
		options = append(options, currAnswer)
	}
	options = append(options, "(Enter manually)")

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")

	if nOptions := len(options); nOptions > 1 {
		// currAnswer exists.
		fmt.Fprintln(stdout)
		for i, option := range options {
			if i == 0 {
				option = fmt.Sprintf("%s (current)", option)
			}
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(stdout)

		for {
			fmt.Fprintf(stdout, "Please choose one [1-%d]: ", nOptions)
			choiceStr, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}

			var choice int
			choiceStr = strings.TrimRight(choiceStr, "\r\n")

			// Default to the first choice if user doesn't enter anything.
			if choiceStr == "" {
				choice = 1
			} else {
				choice, err = strconv.Atoi(choiceStr)
				if err != nil || choice < 1 || choice > nOptions {
					// Try again if the input is invalid.
					continue
				}
			}

			if choice == nOptions {
				// Enter manually.
				break
			}

			return options[choice-1], nil
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp), nil
}
