package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/lifecycle"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/lifecycle/entity"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/profile"
	profileentity "github.com/ovaphlow/pitchfork/client-core-go/internal/profile/entity"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/session"
	sessionentity "github.com/ovaphlow/pitchfork/client-core-go/internal/session/entity"
)

var (
	errUsage              = errors.New("usage")
	errProfileUnavailable = errors.New("profile not loaded")
)

func usage() {
	fmt.Fprint(os.Stderr, `usage: client <command> [flags]

commands:
  login       -email -password
  register    -email -password [-first -last]
  logout
  whoami
  profile     [-phone -birthday -language -bio -url -visibility -avatar]
  deactivate  -password [-reason] [-watch]
  delete      -password -confirm [-reason] [-watch]
  status      [-id]
  watch       [-id]
`)
}

func (a *app) run(ctx context.Context, name string, args []string) error {
	if name != "login" && name != "register" {
		a.session.Init(ctx)
	}
	var err error
	switch name {
	case "login":
		err = a.login(ctx, args)
	case "register":
		err = a.register(ctx, args)
	case "logout":
		err = a.session.Logout(ctx)
		if err == nil {
			fmt.Println("Signed out.")
		}
	case "whoami":
		err = a.whoami()
	case "profile":
		err = a.profile(ctx, args)
	case "deactivate":
		err = a.submit(ctx, entity.TypeDeactivation, args)
	case "delete":
		err = a.submit(ctx, entity.TypeDeletion, args)
	case "status":
		err = a.status(ctx, args)
	case "watch":
		err = a.watch(ctx, args)
	default:
		usage()
		return errUsage
	}
	a.printNotifications(os.Stdout)
	return err
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account e-mail")
	password := fs.String("password", os.Getenv("CLIENT_PASSWORD"), "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.session.Login(ctx, sessionentity.Credentials{Email: *email, Password: *password}); err != nil {
		return err
	}
	u, _ := a.session.CurrentUser()
	fmt.Printf("Signed in as %s.\n", u.Email)
	if notice, ok := a.session.TakeDeactivationNotice(); ok {
		fmt.Println(notice)
	}
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := newFlagSet("register")
	email := fs.String("email", "", "account e-mail")
	password := fs.String("password", os.Getenv("CLIENT_PASSWORD"), "account password")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	err := a.session.Register(ctx, sessionentity.Registration{
		Email:     *email,
		Password:  *password,
		FirstName: *first,
		LastName:  *last,
	})
	if err != nil {
		return err
	}
	u, _ := a.session.CurrentUser()
	fmt.Printf("Account created. Signed in as %s.\n", u.Email)
	return nil
}

func (a *app) whoami() error {
	u, ok := a.session.CurrentUser()
	if !ok {
		fmt.Println("Not signed in.")
		return nil
	}
	fmt.Printf("%s <%s>\n", strings.TrimSpace(u.FirstName+" "+u.LastName), u.Email)
	fmt.Printf("  id:       %s\n  role:     %s\n  verified: %t\n", u.ID, u.Role, u.IsVerified)
	if u.ProfileURL != "" {
		fmt.Printf("  profile:  %s\n", u.ProfileURL)
	}
	return nil
}

func (a *app) profile(ctx context.Context, args []string) error {
	fs := newFlagSet("profile")
	phone := fs.String("phone", "", "phone number")
	birthday := fs.String("birthday", "", "birthday (YYYY-MM-DD)")
	lang := fs.String("language", "", "preferred language (BCP 47)")
	bio := fs.String("bio", "", "public description")
	url := fs.String("url", "", "custom profile URL")
	visibility := fs.String("visibility", "", "public or private")
	avatar := fs.String("avatar", "", "avatar reference")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rec, ok, err := a.session.Profile(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errProfileUnavailable
	}

	changed := false
	fs.Visit(func(f *flag.Flag) {
		changed = true
		switch f.Name {
		case "phone":
			rec.Phone = *phone
		case "birthday":
			rec.Birthday = *birthday
		case "language":
			rec.Language = *lang
		case "bio":
			rec.Description = *bio
		case "url":
			rec.CustomURL = *url
		case "visibility":
			rec.Visibility = *visibility
		case "avatar":
			rec.Avatar = *avatar
		}
	})
	if changed {
		if rec, err = a.session.SaveProfile(ctx, rec); err != nil {
			return err
		}
		fmt.Println("Profile saved.")
	}
	printProfile(os.Stdout, rec)
	return nil
}

func printProfile(w io.Writer, rec profileentity.Record) {
	fmt.Fprintf(w, "phone:      %s\n", rec.Phone)
	fmt.Fprintf(w, "birthday:   %s\n", rec.Birthday)
	fmt.Fprintf(w, "language:   %s\n", rec.Language)
	fmt.Fprintf(w, "bio:        %s\n", rec.Description)
	fmt.Fprintf(w, "url:        %s\n", rec.CustomURL)
	fmt.Fprintf(w, "visibility: %s\n", rec.Visibility)
	fmt.Fprintf(w, "avatar:     %s\n", rec.Avatar)
}

func (a *app) submit(ctx context.Context, typ entity.Type, args []string) error {
	fs := newFlagSet(string(typ))
	password := fs.String("password", os.Getenv("CLIENT_PASSWORD"), "current password")
	reason := fs.String("reason", "", "optional reason")
	watch := fs.Bool("watch", false, "follow the review until it completes")
	var confirm *string
	if typ == entity.TypeDeletion {
		confirm = fs.String("confirm", "", fmt.Sprintf("type %s to confirm", a.cfg.DeleteConfirmation))
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	in := lifecycle.Input{Type: typ, Password: *password, Reason: *reason}
	if confirm != nil {
		in.Confirmation = *confirm
	}

	req, err := a.workflow.Submit(ctx, in)
	if err != nil {
		return err
	}
	fmt.Printf("Request %s submitted (%s).\n", req.ID, req.Status)
	if !*watch {
		return nil
	}
	return a.follow(ctx, req.ID)
}

// requestID returns the -id flag, or the open request recorded for the
// signed-in user.
func (a *app) requestID(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if u, ok := a.session.CurrentUser(); ok {
		return a.session.ActiveRequest(u.ID)
	}
	return ""
}

func (a *app) status(ctx context.Context, args []string) error {
	fs := newFlagSet("status")
	id := fs.String("id", "", "request id (defaults to your open request)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	requestID := a.requestID(*id)
	if requestID == "" {
		return errUsage
	}
	req, err := a.client.GetAccountRequest(ctx, requestID)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s: %s\n", req.RequestType, req.ID, req.Status)
	if req.Notes != nil && *req.Notes != "" {
		fmt.Printf("notes: %s\n", *req.Notes)
	}
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := newFlagSet("watch")
	id := fs.String("id", "", "request id (defaults to your open request)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u, ok := a.session.CurrentUser()
	if !ok {
		return session.ErrNotAuthenticated
	}
	requestID := a.requestID(*id)
	if requestID == "" {
		return errUsage
	}
	req, err := a.client.GetAccountRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.UserID == "" {
		req.UserID = u.ID
	}
	if req.UserID != u.ID {
		return fmt.Errorf("request %s belongs to another account", req.ID)
	}
	if err := a.workflow.Resume(req); err != nil {
		return err
	}
	return a.follow(ctx, req.ID)
}

// follow polls until the request is terminal. After an approval it waits
// for the sign-out countdown, or signs out at once if interrupted.
func (a *app) follow(ctx context.Context, requestID string) error {
	u, _ := a.session.CurrentUser()
	state := a.workflow.State(u.ID)
	if state != entity.StateApproved && state != entity.StateRejected {
		fmt.Printf("Watching %s every %s. Press Ctrl+C to stop.\n", requestID, a.cfg.StatusPollInterval)
		var err error
		if state, err = a.workflow.Watch(ctx, requestID); err != nil {
			return err
		}
	}
	fmt.Printf("Request %s: %s\n", requestID, state)
	if state != entity.StateApproved {
		return nil
	}
	c, ok := a.workflow.Countdown(u.ID)
	if !ok {
		return nil
	}
	fmt.Printf("Signing out in %s.\n", c.Remaining().Round(time.Second))
	select {
	case <-c.Done():
	case <-ctx.Done():
		c.Dismiss()
	}
	return nil
}

func (a *app) printNotifications(w io.Writer) {
	for _, e := range a.center.List() {
		if e.Read {
			continue
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", e.Type, e.Title, e.Message)
	}
	a.center.MarkAllRead()
}

// userFacing turns an error into the text shown to the user.
func userFacing(err error) string {
	var authErr *session.AuthError
	var verr *lifecycle.ValidationError
	var dup *lifecycle.DuplicateRequestError
	var fetchErr *profile.FetchError
	switch {
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return "See `client` for usage."
	case errors.As(err, &authErr):
		return authErr.UserMessage()
	case errors.As(err, &verr):
		return verr.Message
	case errors.As(err, &dup):
		return "You already have a request under review."
	case errors.As(err, &fetchErr), errors.Is(err, errProfileUnavailable):
		return "Your profile could not be loaded. Please try again."
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, lifecycle.ErrNotAuthenticated),
		errors.Is(err, profile.ErrNotAuthenticated):
		return "Please sign in first."
	}
	return err.Error()
}
