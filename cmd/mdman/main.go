// WebDAV markdown manager CLI.
//
// Browses, edits and mirrors a markdown repository served over WebDAV.
// Connection details come from flags, MDMAN_* environment variables or
// the saved profile, in that order of precedence.
//
// Sub-commands:
//
//	mdman connect [flags]            Probe the server and save a profile
//	mdman disconnect                 Remove the saved profile
//	mdman ls [-a] [path]             List a remote directory
//	mdman stat <path>                Show one remote entry
//	mdman cat <path>                 Print a remote file to stdout
//	mdman mkdir <path>               Create a remote folder
//	mdman touch <path>               Create an empty remote file
//	mdman rm [-f] <path>             Delete a remote file or folder
//	mdman mv [-f] <path> <name|dir>  Rename, or move into a directory
//	mdman cp [-f] <path> <dir>       Copy into a directory
//	mdman put [-to dir] <file>...    Upload local files
//	mdman get [-out dir] <path>      Download a file or directory tree
//	mdman edit <path>...             Edit remote files in $EDITOR
//	mdman sync [-watch]              Mirror the remote tree locally
//	mdman status [-purge]            Show the profile and cache usage
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/OllieHu/webdav-markdown-manager/internal/config"
	"github.com/OllieHu/webdav-markdown-manager/internal/documents"
	"github.com/OllieHu/webdav-markdown-manager/internal/events"
	"github.com/OllieHu/webdav-markdown-manager/internal/logging"
	"github.com/OllieHu/webdav-markdown-manager/internal/metrics"
	"github.com/OllieHu/webdav-markdown-manager/internal/mirror"
	"github.com/OllieHu/webdav-markdown-manager/internal/operations"
	"github.com/OllieHu/webdav-markdown-manager/internal/paths"
	"github.com/OllieHu/webdav-markdown-manager/internal/remote"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "connect":
		cmdConnect(os.Args[2:])
	case "disconnect":
		cmdDisconnect(os.Args[2:])
	case "ls":
		cmdLs(os.Args[2:])
	case "stat":
		cmdStat(os.Args[2:])
	case "cat":
		cmdCat(os.Args[2:])
	case "mkdir":
		cmdMkdir(os.Args[2:])
	case "touch":
		cmdTouch(os.Args[2:])
	case "rm":
		cmdRm(os.Args[2:])
	case "mv":
		cmdMv(os.Args[2:])
	case "cp":
		cmdCp(os.Args[2:])
	case "put":
		cmdPut(os.Args[2:])
	case "get":
		cmdGet(os.Args[2:])
	case "edit":
		cmdEdit(os.Args[2:])
	case "sync":
		cmdSync(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: mdman <command> [flags] [args]

Commands:
  connect      Probe the server and save a connection profile
  disconnect   Remove the saved profile
  ls           List a remote directory
  stat         Show details for one remote entry
  cat          Print a remote file to stdout
  mkdir        Create a remote folder
  touch        Create an empty remote file
  rm           Delete a remote file or folder
  mv           Rename an entry, or move it into another directory
  cp           Copy an entry into another directory
  put          Upload local files
  get          Download a file or directory tree
  edit         Edit remote files in $EDITOR and save them back
  sync         Mirror the remote tree to a local directory
  status       Show the saved profile and local cache usage

Run 'mdman <command> -h' for the command's flags.
`)
}

// remoteFlags registers the connection override flags shared by every
// command that talks to the server.
func remoteFlags(fs *flag.FlagSet) (server, user, base *string) {
	server = fs.String("server", "", "Server URL (overrides profile and MDMAN_SERVER_URL)")
	user = fs.String("user", "", "Username (overrides profile and MDMAN_USERNAME)")
	base = fs.String("base", "", "Remote base path (overrides profile and MDMAN_BASE_PATH)")
	return
}

// loadConfig merges flag values over the environment over the saved
// profile and initializes logging.
func loadConfig(server, user, base string) *config.Config {
	cfg := config.Load()
	if prof, err := config.LoadProfile(); err == nil {
		if cfg.ServerURL == "" {
			cfg.ServerURL = prof.ServerURL
		}
		if cfg.Username == "" {
			cfg.Username = prof.Username
		}
		if os.Getenv("MDMAN_BASE_PATH") == "" && prof.BasePath != "" {
			cfg.BasePath = prof.BasePath
		}
	}
	if server != "" {
		cfg.ServerURL = server
	}
	if user != "" {
		cfg.Username = user
	}
	if base != "" {
		cfg.BasePath = base
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openSession validates the merged configuration and connects. The
// password comes from MDMAN_PASSWORD or an interactive prompt when the
// profile names a user.
func openSession(ctx context.Context, cfg *config.Config) *remote.Client {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Password == "" && cfg.Username != "" {
		cfg.Password = promptPassword()
	}
	client := remote.NewClient()
	if err := client.Connect(ctx, cfg.ResolvedServerURL(), cfg.Username, cfg.Password, cfg.BasePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return client
}

// newStack assembles the overlay and engine behind one connection.
func newStack(cfg *config.Config, client *remote.Client) (*operations.Engine, *documents.Overlay) {
	bus := events.NewBroadcaster()
	overlay, err := documents.NewOverlay(client, cfg.CacheDir, cfg.CacheMaxSize, bus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return operations.NewEngine(client, overlay, bus), overlay
}

// promptPassword reads a password without echo. Returns "" when stdin
// is not a terminal.
func promptPassword() string {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return ""
	}
	fmt.Print("Password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		os.Exit(1)
	}
	return string(pw)
}

// confirmPrompt asks on the terminal and accepts y/yes.
func confirmPrompt(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func confirmFor(force bool) operations.ConfirmFunc {
	if force {
		return func(string) bool { return true }
	}
	return confirmPrompt
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func cmdConnect(args []string) {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	server := fs.String("server", "", "Server URL (required unless MDMAN_SERVER_URL is set)")
	user := fs.String("user", "", "Username")
	base := fs.String("base", "", "Remote base path (default /)")
	passwordStdin := fs.Bool("password-stdin", false, "Read the password from standard input")
	noSave := fs.Bool("no-save", false, "Do not save a connection profile")
	fs.Parse(args)

	cfg := config.Load()
	if *server != "" {
		cfg.ServerURL = *server
	}
	if *user != "" {
		cfg.Username = *user
	}
	if *base != "" {
		cfg.BasePath = *base
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if cfg.Username == "" && term.IsTerminal(int(syscall.Stdin)) {
		fmt.Print("Username (empty for anonymous): ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		cfg.Username = strings.TrimSpace(line)
	}
	if *passwordStdin {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "Error reading password from stdin: %v\n", err)
			os.Exit(1)
		}
		cfg.Password = strings.TrimRight(line, "\r\n")
	} else if cfg.Password == "" && cfg.Username != "" {
		cfg.Password = promptPassword()
	}

	client := remote.NewClient()
	if err := client.Connect(context.Background(), cfg.ResolvedServerURL(), cfg.Username, cfg.Password, cfg.BasePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	sess, _ := client.Session()

	who := sess.Username
	if who == "" {
		who = "anonymous"
	}
	fmt.Printf("Connected to %s as %s (base path %s)\n", sess.ServerURL, who, sess.BasePath)

	if !*noSave {
		prof := &config.Profile{
			ServerURL: sess.ServerURL,
			Username:  sess.Username,
			BasePath:  sess.BasePath,
			SavedAt:   time.Now(),
		}
		if err := config.SaveProfile(prof); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save profile: %v\n", err)
			return
		}
		fmt.Printf("Profile saved to %s\n", config.ProfilePath())
	}
}

func cmdDisconnect(args []string) {
	fs := flag.NewFlagSet("disconnect", flag.ExitOnError)
	fs.Parse(args)

	if err := config.DeleteProfile(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("No saved profile.")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Profile removed.")
}

func cmdLs(args []string) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	server, user, base := remoteFlags(fs)
	all := fs.Bool("a", false, "Include hidden entries")
	fs.Parse(args)

	cfg := loadConfig(*server, *user, *base)
	defer logging.Sync()
	ctx := context.Background()
	client := openSession(ctx, cfg)

	p := client.BasePath()
	if fs.NArg() > 0 {
		p = paths.Normalize(fs.Arg(0), client.BasePath())
	}

	list := client.List
	if *all {
		list = client.ListAll
	}
	entries, err := list(ctx, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("(empty)")
		return
	}
	fmt.Printf("%-4s  %10s  %-16s  %s\n", "TYPE", "SIZE", "MODIFIED", "NAME")
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		fmt.Printf("%-4s  %10d  %-16s  %s\n", kind, e.Size, fmtTime(e.ModTime), e.Name())
	}
}

func cmdStat(args []string) {
	fs := flag.NewFlagSet("stat", flag.ExitOnError)
	server, user, base := remoteFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: mdman stat [flags] <path>\n")
		os.Exit(1)
	}

	cfg := loadConfig(*server, *user, *base)
	defer logging.Sync()
	ctx := context.Background()
	client := openSession(ctx, cfg)

	p := paths.Normalize(fs.Arg(0), client.BasePath())
	entry, err := client.Stat(ctx, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	kind := "file"
	if entry.IsDir {
		kind = "directory"
	}
	fmt.Printf("Path:      %s\n", entry.Path)
	fmt.Printf("Type:      %s\n", kind)
	fmt.Printf("Size:      %d bytes\n", entry.Size)
	fmt.Printf("Modified:  %s\n", fmtTime(entry.ModTime))
}

func cmdCat(args []string) {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	server, user, base := remoteFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: mdman cat [flags] <path>\n")
		os.Exit(1)
	}

	cfg := loadConfig(*server, *user, *base)
	defer logging.Sync()
	ctx := context.Background()
	client := openSession(ctx, cfg)

	p := paths.Normalize(fs.Arg(0), client.BasePath())
	data, isText, err := client.Read(ctx, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !isText {
		fmt.Fprintf(os.Stderr, "Warning: %s does not look like text\n", p)
	}
	os.Stdout.Write(data)
}

func cmdMkdir(args []string) {
	fs := flag.NewFlagSet("mkdir", flag.ExitOnError)
	server, user, base := remoteFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: mdman mkdir [flags] <path>\n")
		os.Exit(1)
	}

	cfg := loadConfig(*server, *user, *base)
	defer logging.Sync()
	ctx := context.Background()
	client := openSession(ctx, cfg)
	eng, _ := newStack(cfg, client)

	p := paths.Normalize(fs.Arg(0), client.BasePath())
	created, err := eng.CreateFolder(ctx, operations.TargetPath(paths.Parent(p)), paths.Base(p))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s\n", created)
}

func cmdTouch(args []string) {
	fs := flag.NewFlagSet("touch", flag.ExitOnError)
	server, user, base := remoteFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: mdman touch [flags] <path>\n")
		os.Exit(1)
	}

	cfg := loadConfig(*server, *user, *base)
	defer logging.Sync()
	ctx := context.Background()
	client := openSession(ctx, cfg)
	eng, _ := newStack(cfg, client)

	p := paths.Normalize(fs.Arg(0), client.BasePath())
	created, err := eng.CreateFile(ctx, operations.TargetPath(paths.Parent(p)), paths.Base(p))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s\n", created)
}

func cmdRm(args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	server, user, base := remoteFlags(fs)
	force := fs.Bool("f", false, "Delete without asking")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: mdman rm [-f] [flags] <path>\n")
		os.Exit(1)
	}

	cfg := loadConfig(*server, *user, *base)
	defer logging.Sync()
	ctx := context.Background()
	client := openSession(ctx, cfg)
	eng, _ := newStack(cfg, client)

	p := paths.Normalize(fs.Arg(0), client.BasePath())
	entry, err := client.Stat(ctx, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := eng.Delete(ctx, entry, confirmFor(*force)); err != nil {
		if errors.Is(err, operations.ErrCancelled) {
			fmt.Println("Aborted.")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %s\n", entry.Path)
}

func cmdMv(args []string) {
	fs := flag.NewFlagSet("mv", flag.ExitOnError)
	server, user, base := remoteFlags(fs)
	force := fs.Bool("f", false, "Replace an existing destination without asking")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Usage: mdman mv [-f] [flags] <path> <new-name | directory>\n")
		os.Exit(1)
	}

	cfg := loadConfig(*server, *user, *base)
	defer logging.Sync()
	ctx := context.Background()
	client := openSession(ctx, cfg)
	eng, _ := newStack(cfg, client)

	src := paths.Normalize(fs.Arg(0), client.BasePath())
	dest := fs.Arg(1)

	entry, err := client.Stat(ctx, src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// A destination containing a separator is a directory to move
	// into; a bare name renames in place.
	if strings.Contains(dest, "/") {
		if err := eng.Cut(ctx, entry); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		target := operations.TargetPath(paths.Normalize(dest, client.BasePath()))
		moved, err := eng.Paste(ctx, target, confirmFor(*force))
		if err != nil {
			if errors.Is(err, operations.ErrCancelled) {
				fmt.Println("Aborted.")
				return
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Moved %s -> %s\n", src, moved)
		return
	}

	renamed, err := eng.Rename(ctx, entry, dest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Renamed %s -> %s\n", src, renamed)
}

func cmdCp(args []string) {
	fs := flag.NewFlagSet("cp", flag.ExitOnError)
	server, user, base := remoteFlags(fs)
	force := fs.Bool("f", false, "Replace an existing destination without asking")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Usage: mdman cp [-f] [flags] <path> <directory>\n")
		os.Exit(1)
	}

	cfg := loadConfig(*server, *user, *base)
	defer logging.Sync()
	ctx := context.Background()
	client := openSession(ctx, cfg)
	eng, _ := newStack(cfg, client)

	src := paths.Normalize(fs.Arg(0), client.BasePath())
	entry, err := client.Stat(ctx, src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := eng.Copy(ctx, entry); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	target := operations.TargetPath(paths.Normalize(fs.Arg(1), client.BasePath()))
	copied, err := eng.Paste(ctx, target, confirmFor(*force))
	if err != nil {
		if errors.Is(err, operations.ErrCancelled) {
			fmt.Println("Aborted.")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Copied %s -> %s\n", src, copied)
}

func cmdPut(args []string) {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	server, user, base := remoteFlags(fs)
	to := fs.String("to", "", "Remote directory to upload into (default: base path)")
	force := fs.Bool("f", false, "Replace existing files without asking")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: mdman put [-to dir] [-f] [flags] <file>...\n")
		os.Exit(1)
	}

	cfg := loadConfig(*server, *user, *base)
	defer logging.Sync()
	ctx := context.Background()
	client := openSession(ctx, cfg)
	eng, _ := newStack(cfg, client)

	target := operations.NoTarget()
	if *to != "" {
		target = operations.TargetPath(paths.Normalize(*to, client.BasePath()))
	}

	uploaded, failed, err := eng.UploadAll(ctx, target, fs.Args(), confirmFor(*force))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Uploaded %d file(s)\n", uploaded)
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "Error: %d file(s) failed to upload\n", failed)
		os.Exit(1)
	}
}

func cmdGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	server, user, base := remoteFlags(fs)
	out := fs.String("out", ".", "Local directory to download into")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: mdman get [-out dir] [flags] <path>\n")
		os.Exit(1)
	}

	cfg := loadConfig(*server, *user, *base)
	defer logging.Sync()
	ctx := context.Background()
	client := openSession(ctx, cfg)
	eng, _ := newStack(cfg, client)

	p := paths.Normalize(fs.Arg(0), client.BasePath())
	entry, err := client.Stat(ctx, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	written, err := eng.Download(ctx, entry, *out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Downloaded %d file(s) to %s\n", written, *out)
}

func cmdEdit(args []string) {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	server, user, base := remoteFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: mdman edit [flags] <path>...\n")
		os.Exit(1)
	}

	cfg := loadConfig(*server, *user, *base)
	defer logging.Sync()
	ctx := context.Background()
	client := openSession(ctx, cfg)
	_, overlay := newStack(cfg, client)

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	editorArgs := strings.Fields(editor)

	for _, arg := range fs.Args() {
		p := paths.Normalize(arg, client.BasePath())
		h, err := overlay.Open(ctx, p, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		doc, _ := overlay.Get(h)

		edited, err := runEditor(editorArgs, p, doc.Content)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if bytes.Equal(edited, doc.Content) {
			fmt.Printf("%s unchanged\n", p)
			continue
		}
		if err := overlay.Write(h, edited); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	saved, failed := overlay.SaveAll(ctx)
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "Error: %d document(s) failed to save; unsaved content is kept in %s\n",
			failed, cfg.CacheDir)
		os.Exit(1)
	}
	if saved == 0 {
		fmt.Println("Nothing to save.")
	} else {
		fmt.Printf("Saved %d document(s)\n", saved)
	}
	overlay.CloseAll()
}

// runEditor hands the buffer to the user's editor via a temp file and
// returns what they left behind.
func runEditor(editorArgs []string, remotePath string, content []byte) ([]byte, error) {
	tmp, err := os.CreateTemp("", "mdman-*"+filepath.Ext(remotePath))
	if err != nil {
		return nil, err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	cmd := exec.Command(editorArgs[0], append(editorArgs[1:], name)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("editor %s: %w", editorArgs[0], err)
	}
	return os.ReadFile(name)
}

func cmdSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	server, user, base := remoteFlags(fs)
	dir := fs.String("dir", "", "Local mirror directory (default: expanded MDMAN_LOCAL_SYNC_PATH)")
	watch := fs.Bool("watch", false, "Keep running and resync on an interval; implied by MDMAN_AUTO_SYNC=true")
	interval := fs.Duration("interval", 0, "Resync interval in watch mode (default MDMAN_SYNC_INTERVAL)")
	fs.Parse(args)

	cfg := loadConfig(*server, *user, *base)
	defer logging.Sync()
	ctx := context.Background()
	client := openSession(ctx, cfg)
	if *interval > 0 {
		cfg.SyncInterval = *interval
	}

	localRoot := *dir
	if localRoot == "" {
		sess, _ := client.Session()
		repo := paths.Base(sess.BasePath)
		if repo == "/" {
			repo = "remote"
		}
		wd, _ := os.Getwd()
		localRoot = config.ExpandLocalSyncPath(cfg.LocalSyncPath, wd, repo)
	}

	bus := events.NewBroadcaster()
	syncer := mirror.NewSyncer(client, bus, localRoot)

	if !*watch && !cfg.AutoSync {
		res, err := syncer.SyncAll(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Synced %d file(s) to %s\n", res.Synced, syncer.LocalRoot())
		if res.Failed > 0 {
			fmt.Fprintf(os.Stderr, "Error: %d file(s) failed to sync\n", res.Failed)
			os.Exit(1)
		}
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Warning: metrics listener failed: %v\n", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	fmt.Printf("Mirroring to %s every %s (metrics on %s). Press Ctrl+C to stop.\n",
		syncer.LocalRoot(), cfg.SyncInterval, cfg.MetricsAddr)

	err := syncer.Run(runCtx, cfg.SyncInterval, cfg.SyncOnSave)

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	srv.Shutdown(shutCtx)
	client.Disconnect()

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Done")
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	purge := fs.Bool("purge", false, "remove all cached document copies")
	fs.Parse(args)

	cfg := config.Load()

	prof, err := config.LoadProfile()
	if err != nil {
		fmt.Println("No saved profile. Run 'mdman connect' first.")
	} else {
		fmt.Printf("Server:     %s\n", prof.ServerURL)
		fmt.Printf("Username:   %s\n", prof.Username)
		fmt.Printf("Base path:  %s\n", prof.BasePath)
		fmt.Printf("Saved at:   %s\n", prof.SavedAt.Local().Format("2006-01-02 15:04:05"))
	}

	size, count, err := documents.CacheUsage(cfg.CacheDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot read cache dir: %v\n", err)
	}
	fmt.Printf("Cache dir:  %s\n", cfg.CacheDir)
	fmt.Printf("Cached:     %d file(s), %d bytes (max %d)\n", count, size, cfg.CacheMaxSize)

	if *purge {
		n, err := documents.ClearCache(cfg.CacheDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Cleared %d cached file(s)\n", n)
	}
}
