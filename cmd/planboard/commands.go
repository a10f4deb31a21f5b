package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/antigravity-dev/planboard/internal/board"
	"github.com/antigravity-dev/planboard/internal/config"
	"github.com/antigravity-dev/planboard/internal/graph"
	"github.com/antigravity-dev/planboard/internal/plan"
	"github.com/antigravity-dev/planboard/internal/planner"
	"github.com/antigravity-dev/planboard/internal/temporal"
)

var (
	durableSchedule bool
	exportOut       string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <project>",
	Short: "Recalculate start times and print the schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedule,
}

var boardCmd = &cobra.Command{
	Use:   "board <project>",
	Short: "Print the assignment board",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoard,
}

var moveCmd = &cobra.Command{
	Use:   "move <project> <task> <column>",
	Short: "Reassign a task to a member column (or \"unassigned\")",
	Args:  cobra.ExactArgs(3),
	RunE:  runMove,
}

var importCmd = &cobra.Command{
	Use:   "import <plan.yaml>",
	Short: "Import tasks, dependencies, members and assignments from a YAML plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export <project>",
	Short: "Write a project as a YAML plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker for reassign and recalculate workflows",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func init() {
	scheduleCmd.Flags().BoolVar(&durableSchedule, "durable", false, "start a RecalculateWorkflow on Temporal instead of running in-process")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write to file instead of stdout")
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// renderSchedule prints slots in topological order plus any skipped edges.
func renderSchedule(sched graph.Schedule) string {
	changed := make(map[string]string, len(sched.Changes))
	for _, c := range sched.Changes {
		changed[c.TaskID] = c.From
	}

	rows := make([][]string, 0, len(sched.Slots))
	for _, s := range sched.Slots {
		note := ""
		if from, ok := changed[s.TaskID]; ok {
			if from == "" {
				from = "--:--"
			}
			note = "was " + from
		}
		if s.RolledOver {
			note = strings.TrimSpace(note + " rolled over")
		}
		rows = append(rows, []string{s.TaskID, s.Start, s.End, note})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("TASK", "START", "END", "").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	var b strings.Builder
	b.WriteString(t.String())
	for _, a := range sched.Anomalies {
		b.WriteString("\n")
		b.WriteString(warningStyle.Render(fmt.Sprintf("warning: %s edge %s -> %s skipped", a.Kind, a.From, a.To)))
	}
	return b.String()
}

func runSchedule(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	name := args[0]
	proj, err := a.project(name)
	if err != nil {
		return err
	}

	if durableSchedule {
		tcfg := a.cfg.Get().Temporal
		c, err := temporal.Dial(tcfg, a.logger)
		if err != nil {
			return err
		}
		defer c.Close()
		opts := proj.PropagateOptions()
		started, err := temporal.StartRecalculate(cmd.Context(), c, tcfg.TaskQueue, temporal.RecalculateRequest{
			Project:      name,
			StartTaskID:  opts.StartTaskID,
			ProjectStart: opts.ProjectStart,
		})
		if err != nil {
			return err
		}
		if !started {
			fmt.Fprintf(cmd.OutOrStdout(), "recalculation for %s already running (%s)\n", name, temporal.RecalculateWorkflowID(name))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "started %s\n", temporal.RecalculateWorkflowID(name))
		return nil
	}

	svc := planner.NewService(a.store.Tasks(), a.logger)
	sched, err := svc.Recalculate(cmd.Context(), name, proj.PropagateOptions())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderSchedule(sched))
	return nil
}

func runBoard(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	name := args[0]
	proj, err := a.project(name)
	if err != nil {
		return err
	}

	in, err := board.StoreSource{Store: a.store}.Load(cmd.Context(), name)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), board.Render(in.Build(proj.Mode())))
	return nil
}

func runMove(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	name, taskID, column := args[0], args[1], args[2]
	proj, err := a.project(name)
	if err != nil {
		return err
	}

	records := recordReassigner(a, nil)
	if tcfg := a.cfg.Get().Temporal; tcfg.Enabled {
		c, err := temporal.Dial(tcfg, a.logger)
		if err != nil {
			return err
		}
		defer c.Close()
		records = recordReassigner(a, c)
	}

	coord, err := newCoordinator(name, proj, a.store, records, a.logger)
	if err != nil {
		return err
	}
	if _, err := coord.Refresh(cmd.Context()); err != nil {
		return err
	}
	if err := coord.Move(cmd.Context(), taskID, column); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), board.Render(coord.Board()))
	return nil
}

// importOptions anchors the post-import schedule. The plan's own start time
// wins over the configured one.
func importOptions(cfg *config.Config, doc plan.Document) graph.PropagateOptions {
	opts := graph.PropagateOptions{StartTaskID: "start", ProjectStart: "09:00"}
	if proj, ok := cfg.Projects[doc.Project]; ok {
		opts = proj.PropagateOptions()
	}
	if doc.StartTime != "" {
		opts.ProjectStart = doc.StartTime
	}
	return opts
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := plan.LoadFile(args[0])
	if err != nil {
		return err
	}
	report, err := plan.Import(cmd.Context(), a.store, doc, a.logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d created, %d updated, %d edges, %d members, %d assignments\n",
		doc.Project, report.Created, report.Updated, report.Edges, report.Members, report.Assignments)
	for _, w := range report.Warnings {
		fmt.Fprintln(out, warningStyle.Render("warning: "+w))
	}

	svc := planner.NewService(a.store.Tasks(), a.logger)
	sched, err := svc.Recalculate(cmd.Context(), doc.Project, importOptions(a.cfg.Get(), doc))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderSchedule(sched))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	name := args[0]

	doc, err := plan.Export(cmd.Context(), a.store, name)
	if err != nil {
		return err
	}
	if proj, ok := a.cfg.Get().Projects[name]; ok {
		doc.StartTime = proj.StartTime
	}

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}
	return plan.Encode(w, doc)
}

func runWorker(_ *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tcfg := a.cfg.Get().Temporal
	if !tcfg.Enabled {
		a.logger.Warn("temporal is disabled in config; starting worker anyway")
	}
	svc := planner.NewService(a.store.Tasks(), a.logger)
	return temporal.StartWorker(tcfg, a.store, svc, a.logger)
}
