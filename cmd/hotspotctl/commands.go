package main

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/model"
	"github.com/mohit83k/hotspot-console/internal/provisioning"
)

// action runs a command after its flags are parsed.
type action func(ctx context.Context, a *app, args []string) (any, error)

type command struct {
	name    string
	summary string
	// setup registers the command's flags and returns its body.
	setup func(fs *flag.FlagSet) action
}

var commands = []command{
	{"dashboard", "accounting counters with live router stats", noFlags(dashboard)},
	{"sessions", "live sessions joined with open accounting rows", noFlags(sessions)},
	{"subscriber", "one subscriber's credential, history and live session", noFlags(subscriber)},
	{"devices", "leased devices classified as wifi or wired", noFlags(devices)},
	{"router", "router resource usage and interfaces", noFlags(router)},
	{"health", "router health sensors", noFlags(health)},
	{"hotspot", "hotspot active table", noFlags(hotspot)},
	{"traffic", "one traffic sample for an interface", trafficCmd},
	{"kick", "tear down a device session by id", noFlags(kick)},
	{"login", "check the router API credentials", noFlags(login)},
	{"user create", "create a subscriber credential", userCreateCmd},
	{"user update", "change a subscriber's password or group", userUpdateCmd},
	{"user delete", "revoke a subscriber and purge its history", userDeleteCmd},
	{"user get", "show one subscriber credential", noFlags(userGet)},
	{"user list", "list subscriber credentials", noFlags(userList)},
	{"groups", "group names in use", noFlags(groups)},
	{"memberships", "username to group assignments", noFlags(memberships)},
	{"accounting", "open accounting sessions", noFlags(openAccounting)},
	{"history", "recent sessions of one subscriber", historyCmd},
	{"billing", "completed sessions, newest first", billingCmd},
	{"nas list", "registered network access servers", noFlags(nasList)},
	{"nas add", "register a network access server", nasAddCmd},
	{"migrate", "create the accounting tables", noFlags(migrate)},
}

// lookup resolves two-word commands before one-word ones.
func lookup(args []string) (command, []string, bool) {
	if len(args) >= 2 {
		if c, ok := find(args[0] + " " + args[1]); ok {
			return c, args[2:], true
		}
	}
	if len(args) >= 1 {
		if c, ok := find(args[0]); ok {
			return c, args[1:], true
		}
	}
	return command{}, nil, false
}

func find(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func noFlags(fn action) func(*flag.FlagSet) action {
	return func(*flag.FlagSet) action { return fn }
}

// oneArg returns the single positional argument named what.
func oneArg(args []string, what string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", errs.E(errs.KindValidation, "hotspotctl", what+" is required", nil)
	}
	return args[0], nil
}

// --- correlated views ---

func dashboard(ctx context.Context, a *app, _ []string) (any, error) {
	e, err := a.engine(ctx)
	if err != nil {
		return nil, err
	}
	return e.Dashboard(ctx)
}

func sessions(ctx context.Context, a *app, _ []string) (any, error) {
	e, err := a.engine(ctx)
	if err != nil {
		return nil, err
	}
	return e.Sessions(ctx)
}

func subscriber(ctx context.Context, a *app, args []string) (any, error) {
	username, err := oneArg(args, "username")
	if err != nil {
		return nil, err
	}
	e, err := a.engine(ctx)
	if err != nil {
		return nil, err
	}
	return e.Subscriber(ctx, username)
}

func devices(ctx context.Context, a *app, _ []string) (any, error) {
	e, err := a.engine(ctx)
	if err != nil {
		return nil, err
	}
	return e.NetworkDevices(ctx)
}

// --- router ---

func router(ctx context.Context, a *app, _ []string) (any, error) {
	return a.device().RouterStatus(ctx)
}

func health(ctx context.Context, a *app, _ []string) (any, error) {
	return a.device().Health(ctx)
}

func hotspot(ctx context.Context, a *app, _ []string) (any, error) {
	return a.device().HotspotActive(ctx)
}

func trafficCmd(fs *flag.FlagSet) action {
	iface := fs.StringP("interface", "i", "ether1", "interface name")
	return func(ctx context.Context, a *app, _ []string) (any, error) {
		return a.device().InterfaceTraffic(ctx, *iface)
	}
}

func kick(ctx context.Context, a *app, args []string) (any, error) {
	id, err := oneArg(args, "session id")
	if err != nil {
		return nil, err
	}
	if err := a.device().DisconnectSession(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"session": id, "disconnected": true}, nil
}

func login(ctx context.Context, a *app, _ []string) (any, error) {
	a.device()
	if err := a.session.Login(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"device": a.cfg.Device.BaseURL(), "authenticated": true}, nil
}

// --- provisioning ---

func userCreateCmd(fs *flag.FlagSet) action {
	var req provisioning.CreateRequest
	fs.StringVarP(&req.Username, "username", "u", "", "subscriber username")
	fs.StringVarP(&req.Password, "password", "p", "", "cleartext password")
	fs.StringVarP(&req.Group, "group", "g", "", "group name (default \""+model.DefaultGroup+"\")")
	return func(ctx context.Context, a *app, _ []string) (any, error) {
		w, err := a.workflow(ctx)
		if err != nil {
			return nil, err
		}
		req.Actor = a.actor
		return w.Create(ctx, req)
	}
}

func userUpdateCmd(fs *flag.FlagSet) action {
	username := fs.StringP("username", "u", "", "subscriber username")
	password := fs.StringP("password", "p", "", "new cleartext password")
	group := fs.StringP("group", "g", "", "new group name")
	return func(ctx context.Context, a *app, _ []string) (any, error) {
		req := provisioning.UpdateRequest{Username: *username, Actor: a.actor}
		if fs.Changed("password") {
			req.Password = password
		}
		if fs.Changed("group") {
			req.Group = group
		}
		w, err := a.workflow(ctx)
		if err != nil {
			return nil, err
		}
		return w.Update(ctx, req)
	}
}

func userDeleteCmd(fs *flag.FlagSet) action {
	disconnect := fs.Bool("disconnect", false, "send Disconnect-Request for open sessions first")
	return func(ctx context.Context, a *app, args []string) (any, error) {
		username, err := oneArg(args, "username")
		if err != nil {
			return nil, err
		}
		w, err := a.workflow(ctx)
		if err != nil {
			return nil, err
		}
		return w.Delete(ctx, provisioning.DeleteRequest{Username: username, Disconnect: *disconnect, Actor: a.actor})
	}
}

func userGet(ctx context.Context, a *app, args []string) (any, error) {
	username, err := oneArg(args, "username")
	if err != nil {
		return nil, err
	}
	w, err := a.workflow(ctx)
	if err != nil {
		return nil, err
	}
	return w.Get(ctx, username)
}

func userList(ctx context.Context, a *app, _ []string) (any, error) {
	w, err := a.workflow(ctx)
	if err != nil {
		return nil, err
	}
	return w.List(ctx)
}

func groups(ctx context.Context, a *app, _ []string) (any, error) {
	w, err := a.workflow(ctx)
	if err != nil {
		return nil, err
	}
	return w.Groups(ctx)
}

// --- accounting ---

func memberships(ctx context.Context, a *app, _ []string) (any, error) {
	s, err := a.accounting(ctx)
	if err != nil {
		return nil, err
	}
	return s.GroupMemberships(ctx)
}

func openAccounting(ctx context.Context, a *app, _ []string) (any, error) {
	s, err := a.accounting(ctx)
	if err != nil {
		return nil, err
	}
	return s.ActiveSessions(ctx)
}

func historyCmd(fs *flag.FlagSet) action {
	limit := fs.IntP("limit", "n", 0, "maximum rows (0 for the default)")
	return func(ctx context.Context, a *app, args []string) (any, error) {
		username, err := oneArg(args, "username")
		if err != nil {
			return nil, err
		}
		s, err := a.accounting(ctx)
		if err != nil {
			return nil, err
		}
		return s.SessionsForUser(ctx, username, *limit)
	}
}

func billingCmd(fs *flag.FlagSet) action {
	limit := fs.IntP("limit", "n", 0, "maximum rows (0 for the default)")
	return func(ctx context.Context, a *app, _ []string) (any, error) {
		s, err := a.accounting(ctx)
		if err != nil {
			return nil, err
		}
		return s.BillingHistory(ctx, *limit)
	}
}

func nasList(ctx context.Context, a *app, _ []string) (any, error) {
	s, err := a.accounting(ctx)
	if err != nil {
		return nil, err
	}
	return s.NASList(ctx)
}

func nasAddCmd(fs *flag.FlagSet) action {
	var n model.NAS
	fs.StringVar(&n.Name, "address", "", "NAS IP address or hostname")
	fs.StringVar(&n.ShortName, "shortname", "", "short name")
	fs.StringVar(&n.Type, "type", "", "NAS type (default \"other\")")
	fs.IntVar(&n.Ports, "ports", 0, "number of ports")
	fs.StringVar(&n.Secret, "secret", "", "shared RADIUS secret")
	fs.StringVar(&n.Description, "description", "", "free-form description")
	return func(ctx context.Context, a *app, _ []string) (any, error) {
		s, err := a.accounting(ctx)
		if err != nil {
			return nil, err
		}
		return s.CreateNAS(ctx, n)
	}
}

func migrate(ctx context.Context, a *app, _ []string) (any, error) {
	s, err := a.accounting(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"migrated": true, "driver": a.cfg.Database.Driver}, nil
}
