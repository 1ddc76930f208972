package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/chemviz/internal/auth"
	"github.com/JonMunkholm/chemviz/internal/client"
	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/JonMunkholm/chemviz/internal/tui"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8000"

// app holds the global flags shared by every command.
type app struct {
	server      string
	sessionFile string
	timeout     time.Duration
	in          *bufio.Reader
	out         io.Writer
}

func (a *app) client() *client.Client {
	return client.New(a.server)
}

func (a *app) session() (client.Session, error) {
	sess, err := client.LoadSession(a.sessionFile)
	if errors.Is(err, client.ErrNotLoggedIn) {
		return client.Session{}, fmt.Errorf("%w: run `chemviz login` first", err)
	}
	return sess, err
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

// prompt reads one line from stdin when value is empty.
func (a *app) prompt(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: bufio.NewReader(in), out: out}

	server := os.Getenv("CHEMVIZ_SERVER")
	if server == "" {
		server = defaultServer
	}

	root := &cobra.Command{
		Use:           "chemviz",
		Short:         "Upload chemical equipment CSV files and inspect their statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.server, "server", server, "API base URL (env CHEMVIZ_SERVER)")
	root.PersistentFlags().StringVar(&a.sessionFile, "session-file", client.DefaultSessionFile(), "where the login session is stored")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 2*time.Minute, "per-command request timeout")

	root.AddCommand(
		a.loginCmd(),
		a.registerCmd(),
		a.logoutCmd(),
		a.uploadCmd(),
		a.equipmentCmd(),
		a.summaryCmd(),
		a.historyCmd(),
		a.reportCmd(),
		a.tuiCmd(),
	)
	return root
}

/* ----------------------------------------
	AUTH
---------------------------------------- */

func (a *app) loginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.prompt("Password", password)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			sess, err := a.client().Login(ctx, args[0], pw)
			if err != nil {
				return err
			}
			if err := client.SaveSession(a.sessionFile, sess); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s\n", sess.User.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func (a *app) registerCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account and store its session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			em, err := a.prompt("Email", email)
			if err != nil {
				return err
			}
			pw, err := a.prompt("Password", password)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			sess, err := a.client().Register(ctx, auth.RegisterInput{
				Username:        args[0],
				Email:           em,
				Password:        pw,
				ConfirmPassword: pw,
			})
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
				return fieldErrors(apiErr.Fields)
			}
			if err != nil {
				return err
			}
			if err := client.SaveSession(a.sessionFile, sess); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Registered and logged in as %s\n", sess.User.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address (prompted when omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

// fieldErrors formats registration problems one per line, sorted by field.
func fieldErrors(fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("  %s: %s", name, fields[name]))
	}
	return fmt.Errorf("registration failed:\n%s", strings.Join(lines, "\n"))
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			var apiErr *client.APIError
			if err := a.client().Logout(ctx, sess); err != nil && !(errors.As(err, &apiErr) && apiErr.Unauthorized()) {
				return err
			}
			if err := client.ClearSession(a.sessionFile); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

/* ----------------------------------------
	DATA
---------------------------------------- */

func (a *app) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.csv>",
		Short: "Upload a CSV file as a new session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			res, err := a.client().UploadCSV(ctx, sess, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s\nSession #%d: %d records", res.Message, res.SessionID, res.RecordCount)
			if res.DroppedCount > 0 {
				fmt.Fprintf(a.out, " (%d rows dropped)", res.DroppedCount)
			}
			fmt.Fprintln(a.out)
			return nil
		},
	}
}

// sessionFlag registers --session; zero means the newest session.
func sessionFlag(cmd *cobra.Command, id *int64) {
	cmd.Flags().Int64Var(id, "session", 0, "session id (default newest)")
}

func sessionPtr(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func (a *app) equipmentCmd() *cobra.Command {
	var id int64
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "equipment",
		Short: "List equipment rows of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			rows, err := a.client().Equipment(ctx, sess, sessionPtr(id))
			if err != nil {
				return err
			}
			if asJSON {
				return a.printJSON(rows)
			}
			return a.printEquipment(rows)
		},
	}
	sessionFlag(cmd, &id)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) summaryCmd() *cobra.Command {
	var id int64
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show summary statistics of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			sum, err := a.client().Summary(ctx, sess, sessionPtr(id))
			if err != nil {
				return err
			}
			if asJSON {
				return a.printJSON(sum)
			}
			return a.printSummary(sum)
		},
	}
	sessionFlag(cmd, &id)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List retained upload sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			sessions, err := a.client().History(ctx, sess)
			if err != nil {
				return err
			}
			if asJSON {
				return a.printJSON(sessions)
			}
			return a.printHistory(sessions)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	var id int64
	var output string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Download the PDF report of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			// Written to a temp file first so a failed download leaves
			// nothing behind.
			dir := "."
			if output != "" {
				dir = filepath.Dir(output)
			}
			tmp, err := os.CreateTemp(dir, ".chemviz-report-*")
			if err != nil {
				return fmt.Errorf("create report file: %w", err)
			}
			defer os.Remove(tmp.Name())

			name, err := a.client().DownloadReport(ctx, sess, sessionPtr(id), tmp)
			if cerr := tmp.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("write report: %w", cerr)
			}
			if err != nil {
				return err
			}

			if output == "" {
				output = filepath.Base(name)
			}
			if err := os.Rename(tmp.Name(), output); err != nil {
				return fmt.Errorf("save report: %w", err)
			}
			fmt.Fprintf(a.out, "Report saved to %s\n", output)
			return nil
		},
	}
	sessionFlag(cmd, &id)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: server-provided filename)")
	return cmd
}

func (a *app) tuiCmd() *cobra.Command {
	var reportDir string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			return tui.Run(a.client(), sess, tui.Options{
				ReportDir: reportDir,
				OnLogout:  func() error { return client.ClearSession(a.sessionFile) },
			})
		},
	}
	cmd.Flags().StringVar(&reportDir, "report-dir", ".", "directory for downloaded reports")
	return cmd
}

/* ----------------------------------------
	OUTPUT
---------------------------------------- */

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func (a *app) printEquipment(rows []core.Equipment) error {
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "No equipment.")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tFLOWRATE\tPRESSURE\tTEMPERATURE")
	for _, e := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Type, num(e.Flowrate), num(e.Pressure), num(e.Temperature))
	}
	return tw.Flush()
}

func (a *app) printSummary(sum client.SummaryResult) error {
	if sum.SessionID == nil {
		fmt.Fprintln(a.out, "No uploads yet.")
		return nil
	}
	fmt.Fprintf(a.out, "Session #%d", *sum.SessionID)
	if sum.Filename != nil {
		fmt.Fprintf(a.out, "  %s", *sum.Filename)
	}
	fmt.Fprintf(a.out, "\nTotal equipment: %d\n\n", sum.TotalCount)

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARAMETER\tMIN\tAVG\tMAX")
	fmt.Fprintf(tw, "Flowrate\t%s\t%s\t%s\n", num(sum.MinFlowrate), num(sum.AvgFlowrate), num(sum.MaxFlowrate))
	fmt.Fprintf(tw, "Pressure\t%s\t%s\t%s\n", num(sum.MinPressure), num(sum.AvgPressure), num(sum.MaxPressure))
	fmt.Fprintf(tw, "Temperature\t%s\t%s\t%s\n", num(sum.MinTemperature), num(sum.AvgTemperature), num(sum.MaxTemperature))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(sum.TypeDistribution) == 0 {
		return nil
	}
	types := make([]string, 0, len(sum.TypeDistribution))
	for t := range sum.TypeDistribution {
		types = append(types, t)
	}
	sort.Strings(types)

	fmt.Fprintln(a.out)
	tw = tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCOUNT")
	for _, t := range types {
		fmt.Fprintf(tw, "%s\t%d\n", t, sum.TypeDistribution[t])
	}
	return tw.Flush()
}

func (a *app) printHistory(sessions []core.Session) error {
	if len(sessions) == 0 {
		fmt.Fprintln(a.out, "No upload history.")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tUPLOADED\tRECORDS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", s.ID, s.Filename, s.UploadedAt.Local().Format("2006-01-02 15:04:05"), s.RecordCount)
	}
	return tw.Flush()
}
