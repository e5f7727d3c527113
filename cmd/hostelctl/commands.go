package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/sync/errgroup"

	"github.com/kimhsiao/hostelhub/client/internal/app"
	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/models"
	"github.com/kimhsiao/hostelhub/client/internal/push"
	syncpkg "github.com/kimhsiao/hostelhub/client/internal/sync"
	"github.com/kimhsiao/hostelhub/client/internal/validation"
)

// Messages printed for conditions the core does not report itself.
const (
	msgLoginFirst = "Please login first"
	msgOffline    = "You are offline. Try again when the API can be reached."
)

type cli struct {
	app    *app.App
	in     *prompter
	out    io.Writer
	errOut io.Writer
}

// displayError carries the message to print for err.
type displayError struct {
	msg string
	err error
}

func (e *displayError) Error() string { return e.msg }
func (e *displayError) Unwrap() error { return e.err }

func shown(err error, msg string) error {
	if err == nil {
		return nil
	}
	if msg == "" {
		return err
	}
	return &displayError{msg: msg, err: err}
}

func (c *cli) report(err error) {
	var d *displayError
	if errors.As(err, &d) {
		fmt.Fprintf(c.errOut, "Error: %s\n", d.msg)
		return
	}
	fmt.Fprintf(c.errOut, "Error: %s\n", apperrors.Message(err, err.Error()))
}

func (c *cli) dispatch(ctx context.Context, name string, args []string) error {
	switch name {
	case "login":
		return c.login(ctx, args)
	case "register":
		return c.register(ctx, args)
	case "logout":
		return c.logout()
	case "whoami":
		return c.whoami(ctx)
	case "hostels":
		return c.hostels(ctx)
	case "hostel":
		return c.hostel(ctx, args)
	case "users":
		return c.users(ctx)
	case "user":
		return c.user(ctx, args)
	case "dashboard":
		return c.dashboard(ctx)
	case "queue":
		return c.queue()
	case "sync":
		return c.sync(ctx)
	case "subscribe":
		return c.subscribe(ctx)
	case "unsubscribe":
		return c.unsubscribe(ctx)
	case "watch":
		return c.watch(ctx)
	default:
		return fmt.Errorf("unknown command: %s", name)
	}
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

// =====================================================
// Session
// =====================================================

func (c *cli) login(ctx context.Context, args []string) error {
	fs := c.flags("login")
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Account password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.requireOnline(); err != nil {
		return err
	}

	var err error
	if *email == "" {
		if *email, err = c.in.line("Email: "); err != nil {
			return err
		}
	}
	if *password == "" {
		if *password, err = c.in.password("Password: "); err != nil {
			return err
		}
	}

	s := c.app.Session
	if err := s.Login(ctx, *email, *password); err != nil {
		return shown(err, s.Err())
	}
	c.printSignedIn(s.User())
	return nil
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs := c.flags("register")
	name := fs.String("name", "", "Full name")
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Password, at least 6 characters (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.requireOnline(); err != nil {
		return err
	}
	if *password == "" {
		var err error
		if *password, err = c.in.password("Password: "); err != nil {
			return err
		}
	}

	s := c.app.Session
	if err := s.Register(ctx, *name, *email, *password); err != nil {
		return shown(err, s.Err())
	}
	c.printSignedIn(s.User())
	return nil
}

func (c *cli) printSignedIn(u *models.User) {
	if u == nil {
		fmt.Fprintln(c.out, "Signed in.")
		return
	}
	fmt.Fprintf(c.out, "Signed in as %s <%s> (%s)\n", u.Name, u.Email, u.Role)
}

func (c *cli) logout() error {
	if err := c.app.Session.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Signed out.")
	return nil
}

func (c *cli) whoami(ctx context.Context) error {
	if err := c.requireLogin(); err != nil {
		return err
	}
	if !c.app.Online() {
		fmt.Fprintln(c.out, "Signed in (offline, account details unavailable)")
		return nil
	}
	s := c.app.Session
	if err := s.LoadUser(ctx); err != nil {
		return shown(err, s.Err())
	}
	u := s.User()
	fmt.Fprintf(c.out, "%s <%s>\nRole: %s\nID:   %s\n", u.Name, u.Email, u.Role, u.ID)
	return nil
}

func (c *cli) requireLogin() error {
	if !c.app.Session.IsAuthenticated() {
		return apperrors.New(apperrors.ErrAuthFailed, msgLoginFirst)
	}
	return nil
}

func (c *cli) requireOnline() error {
	if !c.app.Online() {
		return apperrors.New(apperrors.ErrNetwork, msgOffline)
	}
	return nil
}

// requireAdmin checks the role with the server. Offline the role cannot be
// confirmed; the queued write is checked by the server when it is replayed.
func (c *cli) requireAdmin(ctx context.Context) error {
	if err := c.requireLogin(); err != nil {
		return err
	}
	if !c.app.Online() {
		return nil
	}
	s := c.app.Session
	if s.User() == nil {
		if err := s.LoadUser(ctx); err != nil {
			return shown(err, s.Err())
		}
	}
	return s.RequireAdmin()
}

// =====================================================
// Hostels
// =====================================================

func (c *cli) hostels(ctx context.Context) error {
	if err := c.requireLogin(); err != nil {
		return err
	}
	st := c.app.Hostels
	if err := st.GetHostels(ctx); err != nil {
		return shown(err, st.State().Err)
	}
	state := st.State()

	w := tabwriter.NewWriter(c.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLOCATION\tCAPACITY")
	fmt.Fprintln(w, "--\t----\t--------\t--------")
	for _, h := range state.Hostels {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", h.ID, h.Name, h.Location, h.Capacity)
	}
	w.Flush()
	fmt.Fprintf(c.out, "%d hostels\n", len(state.Hostels))
	return nil
}

func (c *cli) hostel(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: hostel get|add|update|delete [arguments]")
	}
	switch args[0] {
	case "get":
		return c.hostelGet(ctx, args[1:])
	case "add":
		return c.hostelAdd(ctx, args[1:])
	case "update":
		return c.hostelUpdate(ctx, args[1:])
	case "delete":
		return c.hostelDelete(ctx, args[1:])
	default:
		return fmt.Errorf("unknown hostel command: %s", args[0])
	}
}

func idArg(args []string, usage string) (models.ID, []string, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", nil, errors.New("usage: " + usage)
	}
	return models.ID(args[0]), args[1:], nil
}

func (c *cli) hostelGet(ctx context.Context, args []string) error {
	id, _, err := idArg(args, "hostel get <id>")
	if err != nil {
		return err
	}
	if err := c.requireLogin(); err != nil {
		return err
	}
	st := c.app.Hostels
	h, err := st.GetHostel(ctx, id)
	if err != nil {
		return shown(err, st.State().Err)
	}
	c.printHostel(h)
	return nil
}

func (c *cli) printHostel(h *models.Hostel) {
	fmt.Fprintf(c.out, "Name:     %s\nLocation: %s\nCapacity: %d\n", h.Name, h.Location, h.Capacity)
	if !h.ID.IsZero() {
		fmt.Fprintf(c.out, "ID:       %s\n", h.ID)
	}
	if h.Creator != nil {
		fmt.Fprintf(c.out, "Created by %s\n", h.Creator.Name)
	}
}

type hostelFlags struct {
	name, location, capacity *string
}

func (c *cli) hostelFlagSet(name string) (*flag.FlagSet, hostelFlags) {
	fs := c.flags(name)
	return fs, hostelFlags{
		name:     fs.String("name", "", "Hostel name"),
		location: fs.String("location", "", "Hostel location"),
		capacity: fs.String("capacity", "", "Number of beds"),
	}
}

func (c *cli) hostelAdd(ctx context.Context, args []string) error {
	fs, f := c.hostelFlagSet("hostel add")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.requireAdmin(ctx); err != nil {
		return err
	}
	in, err := validation.HostelForm(*f.name, *f.location, *f.capacity)
	if err != nil {
		return err
	}

	st := c.app.Hostels
	h, err := st.AddHostel(ctx, in)
	if err != nil {
		return shown(err, st.State().Err)
	}
	c.printWritten("Added", h.Name)
	return nil
}

func (c *cli) hostelUpdate(ctx context.Context, args []string) error {
	id, rest, err := idArg(args, "hostel update <id> [-name N] [-location L] [-capacity C]")
	if err != nil {
		return err
	}
	fs, f := c.hostelFlagSet("hostel update")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if err := c.requireAdmin(ctx); err != nil {
		return err
	}

	st := c.app.Hostels
	// Online, omitted fields keep their current values.
	if c.app.Online() && (*f.name == "" || *f.location == "" || *f.capacity == "") {
		cur, err := st.GetHostel(ctx, id)
		if err != nil {
			return shown(err, st.State().Err)
		}
		if *f.name == "" {
			*f.name = cur.Name
		}
		if *f.location == "" {
			*f.location = cur.Location
		}
		if *f.capacity == "" {
			*f.capacity = fmt.Sprint(cur.Capacity)
		}
	}

	in, err := validation.HostelForm(*f.name, *f.location, *f.capacity)
	if err != nil {
		return err
	}
	h, err := st.UpdateHostel(ctx, id, in)
	if err != nil {
		return shown(err, st.State().Err)
	}
	c.printWritten("Updated", h.Name)
	return nil
}

func (c *cli) hostelDelete(ctx context.Context, args []string) error {
	id, _, err := idArg(args, "hostel delete <id>")
	if err != nil {
		return err
	}
	if err := c.requireAdmin(ctx); err != nil {
		return err
	}
	st := c.app.Hostels
	if err := st.DeleteHostel(ctx, id); err != nil {
		return shown(err, st.State().Err)
	}
	c.printWritten("Deleted", "hostel "+id.String())
	return nil
}

func (c *cli) printWritten(verb, what string) {
	if c.app.Online() {
		fmt.Fprintf(c.out, "%s %s.\n", verb, what)
		return
	}
	fmt.Fprintf(c.out, "%s %s offline. The change will sync when online.\n", verb, what)
}

// =====================================================
// Users
// =====================================================

func (c *cli) users(ctx context.Context) error {
	if err := c.requireOnline(); err != nil {
		return err
	}
	if err := c.requireAdmin(ctx); err != nil {
		return err
	}
	svc := c.app.Users
	list, err := svc.List(ctx)
	if err != nil {
		return shown(err, svc.Err())
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE")
	fmt.Fprintln(w, "--\t----\t-----\t----")
	for _, u := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role)
	}
	return w.Flush()
}

func (c *cli) user(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: user role <id> <user|admin> | user delete <id>")
	}
	if err := c.requireOnline(); err != nil {
		return err
	}
	if err := c.requireAdmin(ctx); err != nil {
		return err
	}
	svc := c.app.Users

	switch args[0] {
	case "role":
		if len(args) != 3 {
			return errors.New("usage: user role <id> <user|admin>")
		}
		if err := svc.ChangeRole(ctx, models.ID(args[1]), models.Role(args[2])); err != nil {
			return shown(err, svc.Err())
		}
		fmt.Fprintf(c.out, "User %s is now %s.\n", args[1], args[2])
		return nil
	case "delete":
		if len(args) != 2 {
			return errors.New("usage: user delete <id>")
		}
		if err := svc.Delete(ctx, models.ID(args[1])); err != nil {
			return shown(err, svc.Err())
		}
		fmt.Fprintf(c.out, "Deleted user %s.\n", args[1])
		return nil
	default:
		return fmt.Errorf("unknown user command: %s", args[0])
	}
}

func (c *cli) dashboard(ctx context.Context) error {
	if err := c.requireOnline(); err != nil {
		return err
	}
	if err := c.requireAdmin(ctx); err != nil {
		return err
	}
	st := c.app.Hostels
	if err := st.GetHostels(ctx); err != nil {
		return shown(err, st.State().Err)
	}
	state := st.State()

	beds := 0
	for _, h := range state.Hostels {
		beds += h.Capacity
	}
	pending, err := c.app.Queue.Len()
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Total hostels:    %d\n", len(state.Hostels))
	fmt.Fprintf(c.out, "Total capacity:   %d\n", beds)
	fmt.Fprintf(c.out, "Registered users: %d\n", state.UserCount)
	fmt.Fprintf(c.out, "Pending changes:  %d\n", pending)
	return nil
}

// =====================================================
// Offline queue
// =====================================================

func (c *cli) queue() error {
	actions, err := c.app.Queue.Drain()
	if err != nil {
		return err
	}
	if len(actions) == 0 {
		fmt.Fprintln(c.out, "No pending changes.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tTYPE\tDETAILS")
	for i, a := range actions {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, a.Type, describe(a))
	}
	return w.Flush()
}

func describe(a models.QueuedAction) string {
	switch a.Type {
	case models.ActionCreate:
		if in, err := a.CreatePayload(); err == nil {
			return fmt.Sprintf("%s, %s (%d beds)", in.Name, in.Location, in.Capacity)
		}
	case models.ActionUpdate:
		if u, err := a.UpdatePayload(); err == nil {
			return fmt.Sprintf("id %s: %s, %s (%d beds)", u.ID, u.Name, u.Location, u.Capacity)
		}
	case models.ActionDelete:
		if id, err := a.DeletePayload(); err == nil {
			return "id " + id.String()
		}
	}
	return string(a.Payload)
}

func (c *cli) sync(ctx context.Context) error {
	if err := c.requireOnline(); err != nil {
		return err
	}
	result, err := c.app.Engine.Resync(ctx)
	if result != nil {
		c.printResync(result)
	}
	return err
}

func (c *cli) printResync(r *syncpkg.ResyncResult) {
	fmt.Fprintf(c.out, "Synced %d offline changes", r.Replayed)
	if r.Failed > 0 {
		fmt.Fprintf(c.out, ", %d could not be applied and were discarded", r.Failed)
	}
	fmt.Fprintln(c.out, ".")
	for _, a := range r.Dropped {
		fmt.Fprintf(c.out, "  discarded %s %s\n", a.Type, describe(a))
	}
}

// =====================================================
// Push
// =====================================================

func (c *cli) subscribe(ctx context.Context) error {
	if err := c.requireLogin(); err != nil {
		return err
	}
	if err := c.requireOnline(); err != nil {
		return err
	}
	m := c.app.Push
	if !m.Supported() {
		return apperrors.New(apperrors.ErrPushUnsupported, push.MsgUnsupported)
	}
	if m.Permission() != push.PermissionGranted {
		perm, err := m.RequestPermission(ctx)
		if err != nil {
			return err
		}
		if perm != push.PermissionGranted {
			fmt.Fprintln(c.out, "Notifications stay off.")
			return nil
		}
	}
	sub, err := m.Subscribe(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Subscribed to push notifications at %s\n", sub.Endpoint)
	return nil
}

func (c *cli) unsubscribe(ctx context.Context) error {
	if err := c.requireOnline(); err != nil {
		return err
	}
	ok, err := c.app.Push.Unsubscribe(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "Not subscribed.")
		return nil
	}
	fmt.Fprintln(c.out, "Unsubscribed from push notifications.")
	return nil
}

// =====================================================
// Watch
// =====================================================

func (c *cli) watch(ctx context.Context) error {
	a := c.app
	a.Engine.SetEventHandler(func(ev syncpkg.ResyncEvent) {
		switch ev.Type {
		case syncpkg.EventResyncStarted:
			fmt.Fprintf(c.out, "Back online, syncing %d offline changes...\n", ev.Total)
		case syncpkg.EventActionDropped:
			if ev.Action == nil {
				return
			}
			fmt.Fprintf(c.out, "  discarded %s %s\n", ev.Action.Type, describe(*ev.Action))
		case syncpkg.EventResyncCompleted:
			fmt.Fprintln(c.out, "Sync complete.")
		case syncpkg.EventResyncFailed:
			fmt.Fprintf(c.out, "Sync failed: %v\n", ev.Err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	a.Watch(gctx)

	local, err := a.Push.Subscription()
	if err != nil {
		return err
	}
	if local != nil {
		l := push.NewListener(a.Push, func(n models.Notification) {
			fmt.Fprintf(c.out, "[%s] %s\n", n.Title, n.Body)
			if n.URL != "" {
				fmt.Fprintf(c.out, "  %s\n", n.URL)
			}
		})
		g.Go(func() error { return l.Run(gctx) })
	}

	state := "online"
	if !a.Online() {
		state = "offline"
	}
	fmt.Fprintf(c.out, "Watching (%s). Press Ctrl+C to stop.\n", state)

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}
