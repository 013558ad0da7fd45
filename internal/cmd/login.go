package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lojinha-app/storefront/internal/identity"
	"github.com/lojinha-app/storefront/internal/storefront"
	log "github.com/sirupsen/logrus"
)

// LoginOptions contains options for the interactive command modes.
type LoginOptions struct {
	// Prompt asks the user for a value. Defaults to reading a line from stdin.
	Prompt func(prompt string) (string, error)

	// Out receives the command output. Defaults to stdout.
	Out io.Writer
}

func (o *LoginOptions) prompt() func(string) (string, error) {
	if o != nil && o.Prompt != nil {
		return o.Prompt
	}
	reader := bufio.NewReader(os.Stdin)
	return func(prompt string) (string, error) {
		fmt.Print(prompt)
		value, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && value != "") {
			return "", err
		}
		return strings.TrimRight(value, "\r\n"), nil
	}
}

func (o *LoginOptions) out() io.Writer {
	if o != nil && o.Out != nil {
		return o.Out
	}
	return os.Stdout
}

// DoLogin signs in with a username (or e-mail) and password read from the prompt.
// An existing session is reused.
func DoLogin(ctx context.Context, rt *Runtime, options *LoginOptions) error {
	out := options.out()
	if current, err := rt.Provider.CurrentSession(ctx); err == nil && current.ID() != "" {
		_, _ = fmt.Fprintf(out, "Already signed in as %s\n", current.ID())
		return nil
	}

	prompt := options.prompt()
	login, err := prompt("Username or e-mail: ")
	if err != nil {
		return fmt.Errorf("read username: %w", err)
	}
	password, err := prompt("Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	signedIn, err := rt.Service.SignIn(ctx, strings.TrimSpace(login), password)
	if err != nil {
		return describeError("sign-in failed", err)
	}
	_, _ = fmt.Fprintf(out, "Signed in as %s\n", signedIn.ID())
	return nil
}

// DoBrowserLogin runs the hosted-UI sign-in in the system browser.
func DoBrowserLogin(ctx context.Context, rt *Runtime, options *LoginOptions) error {
	out := options.out()
	_, _ = fmt.Fprintln(out, "Opening the browser to sign in...")
	signedIn, err := rt.Provider.SignInWithBrowser(ctx, identity.DefaultBrowserTimeout)
	if err != nil {
		return describeError("browser sign-in failed", err)
	}
	_, _ = fmt.Fprintf(out, "Signed in as %s\n", signedIn.ID())
	return nil
}

// DoSignUp registers a new account from prompted values.
func DoSignUp(ctx context.Context, rt *Runtime, options *LoginOptions) error {
	prompt := options.prompt()
	var input storefront.SignUpInput
	type promptField struct {
		label  string
		target *string
	}
	fields := []promptField{
		{"Name: ", &input.Name},
		{"E-mail: ", &input.Email},
		{"Password: ", &input.Password},
		{"Address (optional): ", &input.Address},
		{"Phone (optional): ", &input.Phone},
	}
	for _, field := range fields {
		value, err := prompt(field.label)
		if err != nil {
			return fmt.Errorf("read %s: %w", strings.TrimSuffix(field.label, ": "), err)
		}
		*field.target = value
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)

	out := options.out()
	result, err := rt.Service.SignUp(ctx, input)
	if err != nil {
		return describeError("sign-up failed", err)
	}
	if result.Confirmed {
		_, _ = fmt.Fprintf(out, "Account created and signed in as %s\n", input.Email)
		return nil
	}
	destination := result.Destination
	if destination == "" {
		destination = input.Email
	}
	_, _ = fmt.Fprintf(out, "Account created. Confirm it with the code sent to %s, then sign in.\n", destination)
	return nil
}

// DoLogout ends the current session.
func DoLogout(ctx context.Context, rt *Runtime, options *LoginOptions) error {
	if err := rt.Service.SignOut(ctx); err != nil {
		return describeError("sign-out failed", err)
	}
	_, _ = fmt.Fprintln(options.out(), "Signed out")
	return nil
}

// DoWhoAmI prints the signed-in user's profile.
func DoWhoAmI(ctx context.Context, rt *Runtime, options *LoginOptions) error {
	out := options.out()
	profile, err := rt.Service.Profile(ctx)
	if errors.Is(err, identity.ErrNoSession) {
		_, _ = fmt.Fprintln(out, "Not signed in")
		return nil
	}
	if err != nil {
		return describeError("profile unavailable", err)
	}
	rows := [][2]string{
		{"ID", profile.ID},
		{"Username", profile.Username},
		{"Name", profile.Name},
		{"E-mail", profile.Email},
		{"Address", profile.Address},
		{"Phone", profile.Phone},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		_, _ = fmt.Fprintf(out, "%-9s %s\n", row[0]+":", row[1])
	}
	return nil
}

// describeError prefixes err with what failed.
func describeError(what string, err error) error {
	if idErr, ok := errors.AsType[*identity.Error](err); ok {
		log.WithFields(log.Fields{"status": idErr.StatusCode(), "error": idErr.Code}).Debug(what)
	}
	return fmt.Errorf("%s: %w", what, err)
}
