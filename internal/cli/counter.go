package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"commesse/internal/app"
	"commesse/internal/core/numerator"
	"commesse/internal/domain/generator"
	pkgnumerator "commesse/pkg/numerator"
)

// CounterView is one counter value.
type CounterView struct {
	Class          string `json:"class"`
	Number         int    `json:"number"`
	DocumentNumber string `json:"documentNumber"`
}

func counterView(class numerator.Class, n int) CounterView {
	return CounterView{Class: class.String(), Number: n, DocumentNumber: pkgnumerator.Format(class, n)}
}

func newPeekCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "peek [class...]",
		Short: "Show the next number of each counter, reconciled with disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			classes, err := parseClasses(args)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := opts.formatter(cmd)
				views := make([]CounterView, 0, len(classes))
				for _, c := range classes {
					n, err := a.Generator.Peek(ctx, c)
					if err != nil {
						return out.Error(err)
					}
					views = append(views, counterView(c, n))
				}
				return out.Success(counterText(views), views)
			})
		},
	}
}

func newAdvanceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <class>",
		Short: "Consume one number without writing a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := parseClass(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := opts.formatter(cmd)
				n, err := a.Generator.Advance(ctx, class)
				if err != nil {
					return out.Error(err)
				}
				v := counterView(class, n)
				return out.Success("issued "+v.DocumentNumber, v)
			})
		},
	}
}

// ReconcileView reports a counter before and after reconciling.
type ReconcileView struct {
	Class  string `json:"class"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

func newReconcileCommand(opts *RootOptions) *cobra.Command {
	var folders []string
	cmd := &cobra.Command{
		Use:   "reconcile [class...]",
		Short: "Move counters past the highest document found on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			classes, err := parseClasses(args)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := opts.formatter(cmd)
				views := make([]ReconcileView, 0, len(classes))
				var lines []string
				for _, c := range classes {
					v, err := reconcileOne(ctx, a, c, folders)
					if err != nil {
						return out.Error(err)
					}
					views = append(views, v)
					lines = append(lines, fmt.Sprintf("%-8s %d -> %d", v.Class, v.Before, v.After))
				}
				return out.Success(strings.Join(lines, "\n"), views)
			})
		},
	}
	cmd.Flags().StringSliceVar(&folders, "folder", nil, "extra order folder outside the orders root")
	return cmd
}

func reconcileOne(ctx context.Context, a *app.App, class numerator.Class, folders []string) (ReconcileView, error) {
	release, err := a.Locks.Acquire(ctx, generator.CounterLockName(class))
	if err != nil {
		return ReconcileView{}, err
	}
	defer release()

	before, err := a.Store.Peek(ctx, class)
	if err != nil {
		return ReconcileView{}, err
	}
	after, err := a.Reconciler.Reconcile(ctx, class, folders...)
	if err != nil {
		return ReconcileView{}, err
	}
	return ReconcileView{Class: class.String(), Before: before, After: after}, nil
}

// ScanView is the highest number found on disk for a class.
type ScanView struct {
	Class   string `json:"class"`
	Highest int    `json:"highest"`
	Folders int    `json:"folders"`
}

func newScanCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [class...]",
		Short: "Report the highest document number on disk without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			classes, err := parseClasses(args)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := opts.formatter(cmd)
				folders, err := a.Reconciler.Folders()
				if err != nil {
					return out.Error(err)
				}
				views := make([]ScanView, 0, len(classes))
				var lines []string
				for _, c := range classes {
					highest, err := a.Reconciler.ScanMax(ctx, c)
					if err != nil {
						return out.Error(err)
					}
					views = append(views, ScanView{Class: c.String(), Highest: highest, Folders: len(folders)})
					lines = append(lines, fmt.Sprintf("%-8s highest %d in %d folders", c, highest, len(folders)))
				}
				return out.Success(strings.Join(lines, "\n"), views)
			})
		},
	}
}

func counterText(views []CounterView) string {
	lines := make([]string, 0, len(views))
	for _, v := range views {
		lines = append(lines, fmt.Sprintf("%-8s next %s", v.Class, v.DocumentNumber))
	}
	return strings.Join(lines, "\n")
}
