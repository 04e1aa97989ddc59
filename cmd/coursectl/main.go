// Command coursectl browses the course catalog, keeps a local cart and
// checks it out against a course shop server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/course-shop/client"
	"github.com/irsalhamdi/course-shop/core/auth"
	"github.com/irsalhamdi/course-shop/core/cart"
	"github.com/irsalhamdi/course-shop/core/checkout"
	"github.com/irsalhamdi/course-shop/random"
	"github.com/sirupsen/logrus"
)

const usage = `commands:
  register <name> <email> <password>
  login <email> <password>
  logout
  courses
  cart show|clear
  cart add|remove <courseId>
  checkout <paymentMethodId>
  orders`

type config struct {
	conf.Version
	URL     string        `conf:"default:http://localhost:5000"`
	Dir     string        `conf:"help:directory for the token and cart files, defaults to the user config dir"`
	Timeout time.Duration `conf:"default:30s"`
	Args    conf.Args
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	if err := run(); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			log.WithField("status", apiErr.Status).Error(apiErr.Msg)
		} else {
			log.Error(err)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg := config{
		Version: conf.Version{Desc: "course shop command line client"},
	}

	help, err := conf.Parse("COURSECTL", &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			fmt.Println(usage)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locating config dir: %w", err)
		}
		cfg.Dir = filepath.Join(base, "coursectl")
	}

	s, err := newSession(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	args := []string(cfg.Args)
	if len(args) == 0 {
		return errors.New(usage)
	}
	return s.dispatch(ctx, args[0], args[1:])
}

type session struct {
	api       *client.Client
	cart      *cart.Cart
	tokenPath string
}

func newSession(cfg config) (*session, error) {
	tokenPath := filepath.Join(cfg.Dir, "token")

	c := client.New(cfg.URL)
	c.HTTP.Timeout = cfg.Timeout

	tok, err := os.ReadFile(tokenPath)
	switch {
	case err == nil:
		c.Token = strings.TrimSpace(string(tok))
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("reading token: %w", err)
	}

	crt, err := cart.New(cart.FileStorage{Path: filepath.Join(cfg.Dir, "cart.json")})
	if err != nil {
		return nil, err
	}

	return &session{api: c, cart: crt, tokenPath: tokenPath}, nil
}

func (s *session) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		if len(args) != 3 {
			return errors.New("usage: register <name> <email> <password>")
		}
		tok, err := s.api.Register(ctx, auth.Registration{Name: args[0], Email: args[1], Password: args[2]})
		if err != nil {
			return err
		}
		return s.saveToken(tok)

	case "login":
		if len(args) != 2 {
			return errors.New("usage: login <email> <password>")
		}
		tok, err := s.api.Login(ctx, auth.Credentials{Email: args[0], Password: args[1]})
		if err != nil {
			return err
		}
		return s.saveToken(tok)

	case "logout":
		if err := s.api.Logout(ctx); err != nil {
			return err
		}
		return s.saveToken("")

	case "courses":
		return s.courses(ctx)

	case "cart":
		return s.cartCmd(ctx, args)

	case "checkout":
		if len(args) != 1 {
			return errors.New("usage: checkout <paymentMethodId>")
		}
		return s.checkout(ctx, args[0])

	case "orders":
		return s.orders(ctx)
	}

	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

func (s *session) saveToken(tok string) error {
	if tok == "" {
		if err := os.Remove(s.tokenPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.tokenPath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.tokenPath, []byte(tok), 0o600)
}

func (s *session) courses(ctx context.Context) error {
	cs, err := s.api.Courses(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPRICE")
	for _, c := range cs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Title, c.Price.StringFixed(2))
	}
	return tw.Flush()
}

func (s *session) cartCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"show"}
	}

	switch args[0] {
	case "show":
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tPRICE")
		for _, it := range s.cart.Items() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", it.CourseID, it.Title, it.Price.StringFixed(2))
		}
		fmt.Fprintf(tw, "\tTOTAL\t%s\n", s.cart.Total().StringFixed(2))
		return tw.Flush()

	case "clear":
		return s.cart.Clear()

	case "add":
		if len(args) != 2 {
			return errors.New("usage: cart add <courseId>")
		}
		c, err := s.api.Course(ctx, args[1])
		if err != nil {
			return err
		}
		return s.cart.Add(cart.Item{CourseID: c.ID, Title: c.Title, Price: c.Price, ImageURL: c.ImageURL})

	case "remove":
		if len(args) != 2 {
			return errors.New("usage: cart remove <courseId>")
		}
		return s.cart.Remove(args[1])
	}

	return fmt.Errorf("unknown cart command %q", args[0])
}

func (s *session) checkout(ctx context.Context, methodID string) error {
	if s.cart.Len() == 0 {
		return errors.New("cart is empty")
	}

	total := s.cart.Total()
	resp, err := s.api.Checkout(ctx, checkout.CheckoutNew{
		CourseIDs:       s.cart.CourseIDs(),
		TotalAmount:     &total,
		PaymentMethodID: methodID,
		IdempotencyKey:  random.String(24),
	})
	if err != nil {
		return err
	}

	if err := s.cart.Clear(); err != nil {
		return err
	}
	fmt.Printf("order %s paid (%s)\n", resp.OrderID, resp.PaymentIntentID)
	return nil
}

func (s *session) orders(ctx context.Context) error {
	ords, err := s.api.Orders(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSTATUS\tTOTAL\tCOURSES")
	for _, o := range ords {
		titles := make([]string, len(o.Items))
		for i, it := range o.Items {
			titles[i] = it.Title
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.CreatedAt.Format(time.DateOnly), o.PaymentStatus, o.TotalAmount.StringFixed(2), strings.Join(titles, ", "))
	}
	return tw.Flush()
}
