package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickpic/client/internal/config"
	"github.com/quickpic/client/internal/identity"
	"github.com/quickpic/client/internal/keychain"
	"github.com/quickpic/client/internal/model"
	"github.com/quickpic/client/internal/repository/store"
	"github.com/quickpic/client/internal/service/api"
	"github.com/quickpic/client/internal/service/sync"
	"github.com/quickpic/client/internal/utils/log"
)

const usage = `usage: client <command> [args]

commands:
  register <username> <password>   create an account and publish keys
  login <username> <password>      sign in to an existing account
  logout                           sign out and drop tokens
  friends                          list friends
  add <username>                   send a friend request
  requests                         list pending friend requests
  accept <request-id>              accept a friend request
  send <username> <text>           send an encrypted message
  inbox [username]                 list conversations, or messages with one friend
  view <message-id>                mark a message viewed and print it
  refresh                          run one sync pass now
  sync                             run the sync loop until interrupted
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if l, err := zap.NewDevelopment(); err == nil {
		log.Replace(l)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}

	secrets := keychain.New(cfg.KeyringService)
	client := api.New(cfg.ServerURL, secrets)
	ids := identity.NewManager(secrets)

	ctx := context.Background()
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "register":
		err = runRegister(ctx, client, ids, args)
	case "login":
		err = runLogin(ctx, client, args)
	case "logout":
		err = runLogout(ctx, client, ids, cfg)
	case "friends":
		err = runFriends(ctx, client)
	case "add":
		err = runAdd(ctx, client, args)
	case "requests":
		err = runRequests(ctx, client)
	case "accept":
		err = runAccept(ctx, client, args)
	case "send":
		err = runSend(ctx, client, ids, cfg, args)
	case "inbox":
		err = runInbox(ctx, cfg, args)
	case "view":
		err = runView(ctx, cfg, args)
	case "refresh":
		err = runRefresh(ctx, client, ids, cfg)
	case "sync":
		err = runSync(client, ids, cfg)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func runRegister(ctx context.Context, client *api.Client, ids *identity.Manager, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("register needs <username> <password>")
	}
	keys, err := ids.LoadOrGenerate()
	if err != nil {
		return err
	}
	user, err := client.Register(ctx, args[0], args[1], keys.Public())
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (%s)\n", user.Username, user.ID)
	return nil
}

func runLogin(ctx context.Context, client *api.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("login needs <username> <password>")
	}
	user, err := client.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s\n", user.Username)
	return nil
}

func runLogout(ctx context.Context, client *api.Client, ids *identity.Manager, cfg *config.Config) error {
	if err := client.Logout(ctx); err != nil {
		return err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.WipeAll(ctx); err != nil {
		return err
	}
	if err := ids.Wipe(); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func runFriends(ctx context.Context, client *api.Client) error {
	friends, err := client.Friends(ctx)
	if err != nil {
		return err
	}
	for _, f := range friends {
		fmt.Printf("%s\t%s\n", f.Username, f.UserID)
	}
	return nil
}

func runAdd(ctx context.Context, client *api.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("add needs <username>")
	}
	if err := client.SendFriendRequest(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("request sent")
	return nil
}

func runRequests(ctx context.Context, client *api.Client) error {
	pending, err := client.PendingFriendRequests(ctx)
	if err != nil {
		return err
	}
	for _, fr := range pending {
		fmt.Printf("%s\tfrom %s\n", fr.ID, fr.FromUser.Username)
	}
	return nil
}

func runAccept(ctx context.Context, client *api.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("accept needs <request-id>")
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return err
	}
	if err := client.AcceptFriendRequest(ctx, id); err != nil {
		return err
	}
	fmt.Println("accepted")
	return nil
}

func runSend(ctx context.Context, client *api.Client, ids *identity.Manager, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("send needs <username> <text>")
	}
	keys, err := ids.Load()
	if err != nil {
		return err
	}
	friends, err := client.Friends(ctx)
	if err != nil {
		return err
	}
	var peer *model.Peer
	for i := range friends {
		if friends[i].Username == args[0] {
			peer = &friends[i]
			break
		}
	}
	if peer == nil {
		return fmt.Errorf("%q is not a friend", args[0])
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := sync.New(st, keys, client, sync.Options{
		Interval:           cfg.SyncInterval,
		Retention:          cfg.Retention,
		SweepInterval:      cfg.SweepInterval,
		MinRefreshInterval: cfg.MinRefreshInterval,
	})
	text := strings.Join(args[1:], " ")
	msg, err := engine.Send(ctx, *peer, []byte(text), model.ContentTypeText)
	if err != nil {
		return err
	}
	fmt.Printf("sent %s\n", msg.ID)
	return nil
}

func runInbox(ctx context.Context, cfg *config.Config, args []string) error {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 0 {
		convs, err := st.ListConversations(ctx)
		if err != nil {
			return err
		}
		for _, c := range convs {
			fmt.Printf("%s\tunread %d\n", c.DisplayName, c.UnreadCount)
		}
		return nil
	}

	convs, err := st.ListConversations(ctx)
	if err != nil {
		return err
	}
	for _, c := range convs {
		if c.DisplayName != args[0] {
			continue
		}
		msgs, err := st.ListMessages(ctx, c.PeerID, 50, 0)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			body := "<not viewed>"
			if m.Viewed || m.Direction == model.DirectionSent {
				body = string(m.Plaintext)
			}
			fmt.Printf("%s\t%s\t%s\n", m.ID, m.Direction, body)
		}
		return st.ResetUnread(ctx, c.PeerID)
	}
	return fmt.Errorf("no conversation with %q", args[0])
}

func runView(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("view needs <message-id>")
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.MarkViewed(ctx, id); err != nil {
		return err
	}
	convs, err := st.ListConversations(ctx)
	if err != nil {
		return err
	}
	for _, c := range convs {
		msgs, err := st.ListMessages(ctx, c.PeerID, 1000, 0)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if m.ID == id {
				fmt.Println(string(m.Plaintext))
				return nil
			}
		}
	}
	return nil
}

func runRefresh(ctx context.Context, client *api.Client, ids *identity.Manager, cfg *config.Config) error {
	keys, err := ids.Load()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := sync.New(st, keys, client, sync.Options{
		Interval:           cfg.SyncInterval,
		Retention:          cfg.Retention,
		SweepInterval:      cfg.SweepInterval,
		MinRefreshInterval: cfg.MinRefreshInterval,
	})
	engine.SyncNow(ctx)
	total, err := st.TotalUnread(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d unread\n", total)
	return nil
}

func runSync(client *api.Client, ids *identity.Manager, cfg *config.Config) error {
	keys, err := ids.Load()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := sync.New(st, keys, client, sync.Options{
		Interval:           cfg.SyncInterval,
		Retention:          cfg.Retention,
		SweepInterval:      cfg.SweepInterval,
		MinRefreshInterval: cfg.MinRefreshInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done
	cancel()
	return nil
}
