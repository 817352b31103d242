// Command devdice is a CLI client for the DevDice REST API.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/and161185/devdice/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Email       string    `json:"email"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "devdice")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "devdice")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok, email string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp, Email: email})
}

func loadToken() (tokenFile, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tokenFile{}, errNotLoggedIn
		}
		return tokenFile{}, err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return tokenFile{}, err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return tokenFile{}, errNotLoggedIn
	}
	return tf, nil
}

func removeToken() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// tokenExpiry reads exp without verifying the signature; the server does that.
func tokenExpiry(tok string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(15 * time.Minute)
}

// ---- tls ----

func loadTLS(caPath string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// ---- utils ----

func openInput(p string, stdin io.Reader) (io.ReadCloser, error) {
	if p == "-" {
		return io.NopCloser(stdin), nil
	}
	return os.Open(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printChallenges(w io.Writer, list []model.Challenge) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE")
	for _, c := range list {
		fmt.Fprintf(tw, "%d\t%s\n", c.ID, c.Title)
	}
	_ = tw.Flush()
}

func printMine(w io.Writer, list []model.UserChallenge) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSAVED\tTITLE")
	for _, uc := range list {
		title := ""
		if uc.Challenge != nil {
			title = uc.Challenge.Title
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", uc.ID, uc.Status, uc.CreatedAt.Local().Format(time.DateOnly), title)
	}
	_ = tw.Flush()
}

var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprint(w, `devdice CLI
Usage:
  devdice [-addr URL] [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  signup     -n <name> -e <email> [-p <password>]     (saves token)
  login      -e <email> [-p <password>]               (saves token)
  logout
  whoami
  roll                                                   (random challenge)
  challenges
  add        -title <title> -desc <description>          (admin)
  import     -file <csv|->                               (admin)
  save       -id <challenge id>
  list
  done       -id <saved id>
  rm         -id <saved id>
  forgot     -e <email>
  reset      -token <token> [-p <new password>]
  delete-account
`)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	if errors.Is(err, errUsage) {
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}
}

func needFlags(set *flag.FlagSet, args []string, names ...string) error {
	if err := set.Parse(args); err != nil {
		return errUsage
	}
	for _, n := range names {
		if set.Lookup(n).Value.String() == "" {
			return fmt.Errorf("need -%s", n)
		}
	}
	return nil
}

func idFlag(name string, args []string) (int64, error) {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	set.SetOutput(io.Discard)
	raw := set.String("id", "", "id")
	if err := needFlags(set, args, "id"); err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(*raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad -id %q", *raw)
	}
	return id, nil
}

// run dispatches one subcommand.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	// global flags
	global := flag.NewFlagSet("devdice", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	addr := global.String("addr", envOr("DEVDICE_ADDR", "http://localhost:4000"), "server base URL")
	caPath := global.String("cacert", "", "CA cert (PEM)")
	insecure := global.Bool("insecure", false, "skip cert verify (dev)")
	if err := global.Parse(args); err != nil || global.NArg() < 1 {
		return errUsage
	}
	cmd, rest := global.Arg(0), global.Args()[1:]

	if cmd == "version" {
		fmt.Fprintf(stdout, "devdice %s (%s)\n", version, buildDate)
		return nil
	}
	if cmd == "logout" {
		return removeToken()
	}

	tlsCfg, err := loadTLS(*caPath, *insecure)
	if err != nil {
		return err
	}
	anon := newClient(*addr, tlsCfg, "")
	authed := func() (*client, tokenFile, error) {
		tf, err := loadToken()
		if err != nil {
			return nil, tf, err
		}
		return newClient(*addr, tlsCfg, tf.AccessToken), tf, nil
	}
	keep := func(s session) error {
		if err := saveToken(s.Token, s.User.Email, tokenExpiry(s.Token)); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "ok: %s <%s>\n", s.User.Name, s.User.Email)
		return nil
	}

	switch cmd {

	case "signup":
		set := flag.NewFlagSet("signup", flag.ContinueOnError)
		set.SetOutput(io.Discard)
		var name, email string
		set.StringVar(&name, "n", "", "display name")
		set.StringVar(&name, "name", "", "display name")
		set.StringVar(&email, "e", "", "email")
		set.StringVar(&email, "email", "", "email")
		p := set.String("p", "", "password (prompted when omitted)")
		if err := needFlags(set, rest, "n", "e"); err != nil {
			return err
		}
		pw, err := passwordArg(*p, "Password: ", stdout)
		if err != nil {
			return err
		}
		s, err := anon.signUp(ctx, name, email, pw)
		if err != nil {
			return err
		}
		return keep(s)

	case "login":
		set := flag.NewFlagSet("login", flag.ContinueOnError)
		set.SetOutput(io.Discard)
		var email string
		set.StringVar(&email, "e", "", "email")
		set.StringVar(&email, "email", "", "email")
		p := set.String("p", "", "password (prompted when omitted)")
		if err := needFlags(set, rest, "e"); err != nil {
			return err
		}
		pw, err := passwordArg(*p, "Password: ", stdout)
		if err != nil {
			return err
		}
		s, err := anon.login(ctx, email, pw)
		if err != nil {
			return err
		}
		return keep(s)

	case "whoami":
		c, _, err := authed()
		if err != nil {
			return err
		}
		u, err := c.me(ctx)
		if err != nil {
			return err
		}
		printJSON(stdout, u)

	case "roll":
		ch, err := anon.random(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "#%d %s\n\n%s\n", ch.ID, ch.Title, ch.Description)

	case "challenges":
		list, err := anon.challenges(ctx)
		if err != nil {
			return err
		}
		printChallenges(stdout, list)

	case "add":
		set := flag.NewFlagSet("add", flag.ContinueOnError)
		set.SetOutput(io.Discard)
		title := set.String("title", "", "title")
		desc := set.String("desc", "", "description")
		if err := needFlags(set, rest, "title", "desc"); err != nil {
			return err
		}
		c, _, err := authed()
		if err != nil {
			return err
		}
		ch, err := c.addChallenge(ctx, model.ChallengeInput{Title: *title, Description: *desc})
		if err != nil {
			return err
		}
		printJSON(stdout, ch)

	case "import":
		set := flag.NewFlagSet("import", flag.ContinueOnError)
		set.SetOutput(io.Discard)
		file := set.String("file", "", "CSV file ('-'=stdin)")
		if err := needFlags(set, rest, "file"); err != nil {
			return err
		}
		c, _, err := authed()
		if err != nil {
			return err
		}
		in, err := openInput(*file, stdin)
		if err != nil {
			return err
		}
		defer in.Close()
		res, err := c.importCSV(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "imported %d, skipped %d\n", res.Count, res.Skipped)

	case "save":
		id, err := idFlag("save", rest)
		if err != nil {
			return err
		}
		c, _, err := authed()
		if err != nil {
			return err
		}
		uc, err := c.save(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved as %d\n", uc.ID)

	case "list":
		c, _, err := authed()
		if err != nil {
			return err
		}
		list, err := c.mine(ctx)
		if err != nil {
			return err
		}
		printMine(stdout, list)

	case "done":
		id, err := idFlag("done", rest)
		if err != nil {
			return err
		}
		c, _, err := authed()
		if err != nil {
			return err
		}
		uc, err := c.complete(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d %s\n", uc.ID, uc.Status)

	case "rm":
		id, err := idFlag("rm", rest)
		if err != nil {
			return err
		}
		c, _, err := authed()
		if err != nil {
			return err
		}
		if err := c.remove(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "removed")

	case "forgot":
		set := flag.NewFlagSet("forgot", flag.ContinueOnError)
		set.SetOutput(io.Discard)
		var email string
		set.StringVar(&email, "e", "", "email")
		set.StringVar(&email, "email", "", "email")
		if err := needFlags(set, rest, "e"); err != nil {
			return err
		}
		msg, err := anon.forgot(ctx, email)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, msg)

	case "reset":
		set := flag.NewFlagSet("reset", flag.ContinueOnError)
		set.SetOutput(io.Discard)
		token := set.String("token", "", "reset token from the email link")
		p := set.String("p", "", "new password (prompted when omitted)")
		if err := needFlags(set, rest, "token"); err != nil {
			return err
		}
		pw, err := passwordArg(*p, "New password: ", stdout)
		if err != nil {
			return err
		}
		msg, err := anon.reset(ctx, *token, pw)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, msg)

	case "delete-account":
		c, tf, err := authed()
		if err != nil {
			return err
		}
		if err := c.deleteAccount(ctx, tf.Email); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "account deleted")
		return removeToken()

	default:
		return errUsage
	}
	return nil
}

// ---- helpers ----

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "server error: %s\n", ae.Error())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
