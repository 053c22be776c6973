// Command slidepi-cli controls a SlidePi daemon from the terminal.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/brianhealey/slidepi/internal/client"
	"github.com/brianhealey/slidepi/internal/models"
	"github.com/brianhealey/slidepi/internal/zeroconf"
)

// browseFunc finds daemons on the LAN. Tests replace it.
var browseFunc = zeroconf.Browse

// NewRootCmd builds the command tree. Every command talks to the daemon
// named by --host.
func NewRootCmd() *cobra.Command {
	var (
		host string
		c    *client.Client
	)

	rootCmd := &cobra.Command{
		Use:           "slidepi-cli",
		Short:         "SlidePi CLI - control a slideshow kiosk",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c = client.New(host)
		},
	}
	rootCmd.SetOut(os.Stdout)
	defaultHost := os.Getenv("SLIDEPI_HOST")
	if defaultHost == "" {
		defaultHost = "localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&host, "host", defaultHost, "daemon address (env SLIDEPI_HOST)")

	// Playback
	rootCmd.AddCommand(&cobra.Command{
		Use:   "state",
		Short: "Show playback, lock and collection state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.State(cmd.Context())
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), st)
			return nil
		},
	})
	for _, a := range []struct{ name, short string }{
		{"next", "Show the next slide"},
		{"prev", "Show the previous slide"},
		{"fullscreen", "Toggle fullscreen on the display"},
		{"toggle", "Toggle pause"},
	} {
		action := a.name
		if action == "toggle" {
			action = "pause"
		}
		rootCmd.AddCommand(&cobra.Command{
			Use:   a.name,
			Short: a.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				res, err := c.Action(cmd.Context(), action)
				return reportAction(cmd, res, err)
			},
		})
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "play",
		Short: "Resume the slideshow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.Play(cmd.Context())
			return reportAction(cmd, res, err)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "pause",
		Short: "Pause the slideshow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.Pause(cmd.Context())
			return reportAction(cmd, res, err)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "goto [index]",
		Short: "Jump to a slide (0-based)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			st, err := c.GoTo(cmd.Context(), idx)
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), st)
			return nil
		},
	})

	rootCmd.AddCommand(settingsCmd(&c))
	rootCmd.AddCommand(imagesCmd(&c))
	for _, sub := range lockCmds(&c) {
		rootCmd.AddCommand(sub)
	}

	// Backups
	rootCmd.AddCommand(&cobra.Command{
		Use:   "backup",
		Short: "Create a backup archive on the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.Backup(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Created %s (%s)\n", b.Name, humanize.Bytes(uint64(b.Size)))
			return nil
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "backups",
		Short: "List backup archives on the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := c.Backups(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				cmd.Println("No backups.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, b := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Name, humanize.Bytes(uint64(b.Size)), humanize.Time(b.Created))
			}
			return tw.Flush()
		},
	})

	// Events
	rootCmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print slideshow events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			err := c.Subscribe(ctx, func(ev models.Event) {
				cmd.Println(describeEvent(ev))
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	})

	var timeout time.Duration
	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Find SlidePi daemons on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			addrs, err := browseFunc(ctx)
			if err != nil {
				return err
			}
			if len(addrs) == 0 {
				cmd.Println("No daemons found.")
				return nil
			}
			sort.Strings(addrs)
			for _, a := range addrs {
				cmd.Println(a)
			}
			return nil
		},
	}
	discoverCmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "how long to listen for announcements")
	rootCmd.AddCommand(discoverCmd)

	return rootCmd
}

func settingsCmd(c **client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change display settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := (*c).Settings(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "set key=value...",
		Short:   "Change settings, e.g. slideDuration=8 imageFit=contain",
		Args:    cobra.MinimumNArgs(1),
		Example: "  slidepi-cli settings set slideDuration=8 showProgress=false",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := parseSettings(args)
			if err != nil {
				return err
			}
			s, err := (*c).UpdateSettings(cmd.Context(), u)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := (*c).ResetSettings(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	})
	return cmd
}

func imagesCmd(c **client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Manage the image collection",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List images in slideshow order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			imgs, err := (*c).Images(cmd.Context())
			if err != nil {
				return err
			}
			if len(imgs) == 0 {
				cmd.Println("No images.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tTITLE\tSIZE\tDIMENSIONS")
			for i, img := range imgs {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%dx%d\n", i, img.ID, img.Title, humanize.Bytes(uint64(img.Size)), img.Width, img.Height)
			}
			return tw.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "upload [file...]",
		Short: "Upload image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := (*c).Upload(cmd.Context(), args...)
			if err != nil {
				return err
			}
			for _, img := range res.Images {
				cmd.Printf("Added %d %q\n", img.ID, img.Title)
			}
			for _, e := range res.Errors {
				cmd.PrintErrf("Rejected: %s\n", e.Message)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rename [id] [title]",
		Short: "Set an image caption",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			img, err := (*c).Rename(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			cmd.Printf("Renamed %d to %q\n", img.ID, img.Title)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "move [id] [position]",
		Short: "Move an image to a new position (0-based)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[1])
			}
			imgs, err := (*c).Move(cmd.Context(), id, to)
			if err != nil {
				return err
			}
			for i, img := range imgs {
				cmd.Printf("%d. %s\n", i, img.Title)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete [id...]",
		Short: "Delete images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				if err := (*c).Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %d: %w", id, err)
				}
				cmd.Printf("Deleted %d\n", id)
			}
			return nil
		},
	})
	return cmd
}

func lockCmds(c **client.Client) []*cobra.Command {
	lockCmd := &cobra.Command{
		Use:   "lock",
		Short: "Lock the controls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := (*c).Lock(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Locked.")
			return nil
		},
	}
	unlockCmd := &cobra.Command{
		Use:   "unlock [password]",
		Short: "Unlock the controls; reads the password from stdin when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := argOrPrompt(cmd, args, "Password: ")
			if err != nil {
				return err
			}
			st, err := (*c).Unlock(cmd.Context(), pw)
			if err != nil {
				return err
			}
			cmd.Println("Unlocked.")
			printState(cmd.OutOrStdout(), st)
			return nil
		},
	}
	passwdCmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the lock password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			cmd.Print("Current password (empty if none): ")
			cur, err := readLine(in)
			if err != nil {
				return err
			}
			cmd.Print("New password: ")
			next, err := readLine(in)
			if err != nil {
				return err
			}
			if _, err := (*c).SetCredential(cmd.Context(), cur, next); err != nil {
				return err
			}
			cmd.Println("Password changed.")
			return nil
		},
	}
	return []*cobra.Command{lockCmd, unlockCmd, passwdCmd}
}

func reportAction(cmd *cobra.Command, res models.ActionResult, err error) error {
	if err != nil {
		return err
	}
	if res.Pending != "" {
		cmd.Printf("Controls are locked: %s waits for the password (slidepi-cli unlock).\n", res.Pending)
		return nil
	}
	if res.State != nil {
		printState(cmd.OutOrStdout(), *res.State)
	}
	return nil
}

func printState(w io.Writer, st models.State) {
	pb := st.Playback
	slide := "-"
	title := ""
	if pb.CurrentIndex != nil {
		slide = strconv.Itoa(*pb.CurrentIndex + 1)
		if i := *pb.CurrentIndex; i < len(st.Images) {
			title = st.Images[i].Title
		}
	}
	fmt.Fprintf(w, "%s  slide %s/%d  %.0f%%", pb.State, slide, pb.Count, pb.ProgressPercent)
	if title != "" {
		fmt.Fprintf(w, "  %q", title)
	}
	if st.Lock.Locked {
		fmt.Fprint(w, "  [locked")
		if st.Lock.Pending != "" {
			fmt.Fprintf(w, ", pending %s", st.Lock.Pending)
		}
		fmt.Fprint(w, "]")
	}
	fmt.Fprintln(w)
}

func describeEvent(ev models.Event) string {
	switch ev.Type {
	case models.EventSlide:
		if ev.Index != nil && *ev.Index >= 0 {
			return fmt.Sprintf("slide %d", *ev.Index+1)
		}
		return "slide -"
	case models.EventProgress:
		if ev.Percent != nil {
			return fmt.Sprintf("progress %.0f%%", *ev.Percent)
		}
	case models.EventPause:
		if ev.Paused != nil && *ev.Paused {
			return "paused"
		}
		return "playing"
	case models.EventCredential:
		return "password required for " + ev.Action
	case models.EventError:
		return "error: " + ev.Message
	case models.EventState:
		if ev.State != nil {
			var buf bytes.Buffer
			printState(&buf, *ev.State)
			return "state " + strings.TrimSpace(buf.String())
		}
	}
	return string(ev.Type)
}

// parseSettings turns key=value pairs into a partial settings update. Keys
// use the JSON names, values are parsed as numbers or booleans when they
// look like one.
func parseSettings(args []string) (models.SettingsUpdate, error) {
	fields := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return models.SettingsUpdate{}, fmt.Errorf("expected key=value, got %q", a)
		}
		switch {
		case v == "true" || v == "false":
			fields[k] = v == "true"
		default:
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				fields[k] = n
			} else {
				fields[k] = v
			}
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return models.SettingsUpdate{}, err
	}
	var u models.SettingsUpdate
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		return models.SettingsUpdate{}, fmt.Errorf("invalid settings: %w", err)
	}
	return u, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid image id %q", s)
	}
	return id, nil
}

func argOrPrompt(cmd *cobra.Command, args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cmd.Print(prompt)
	return readLine(bufio.NewReader(cmd.InOrStdin()))
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
