package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"commesse/internal/app"
	"commesse/internal/core/numerator"
	"commesse/internal/domain/ddt"
	"commesse/internal/domain/generator"
	"commesse/internal/domain/guard"
)

var timeNow = time.Now

func newGenerateCommand(opts *RootOptions) *cobra.Command {
	var (
		classFlag string
		preview   bool
	)
	cmd := &cobra.Command{
		Use:   "generate <order-folder>",
		Short: "Issue a delivery note for an order folder",
		Long: `Issue a delivery note exactly as the API does, including the duplicate rules.

With --preview only the next file name is computed and nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := parseClass(classFlag)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := opts.formatter(cmd)
				var res *generator.Result
				if preview {
					res, err = a.Generator.Generate(ctx, generator.Request{Folder: args[0], Class: class})
				} else {
					res, err = a.Service.Issue(ctx, args[0], class)
				}
				if err != nil {
					return out.Error(err)
				}
				text := res.FilePath
				if res.Note != "" {
					text = fmt.Sprintf("%s (%s)", text, res.Note)
				}
				return out.Success(text, res)
			})
		},
	}
	cmd.Flags().StringVarP(&classFlag, "class", "c", numerator.Entrata.String(), "document class (entrata|uscita)")
	cmd.Flags().BoolVar(&preview, "preview", false, "compute the next file name without writing")
	return cmd
}

// CheckView summarises the duplicate guards for a folder.
type CheckView struct {
	Folder         string `json:"folder"`
	OrderCode      string `json:"orderCode"`
	InboundToday   string `json:"inboundToday,omitempty"`
	OutboundToday  string `json:"outboundToday,omitempty"`
	InboundAnyDay  string `json:"inboundAnyDay,omitempty"`
	LatestOutbound string `json:"latestOutbound,omitempty"`
}

func newCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <order-folder>",
		Short: "Show which existing documents would block or feed a new delivery note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			v, err := check(args[0])
			if err != nil {
				return out.Error(err)
			}
			return out.Success(checkText(v), v)
		},
	}
}

func check(folder string) (CheckView, error) {
	abs, err := generator.ResolveFolder(folder)
	if err != nil {
		return CheckView{}, err
	}
	meta, err := ddt.LoadMetadata(abs)
	if err != nil {
		meta = ddt.Metadata{}
	}
	code := ddt.OrderCode(abs, meta)
	materials := ddt.MaterialsPath(abs)
	v := CheckView{Folder: abs, OrderCode: code}

	today := timeNow()
	if _, v.InboundToday, err = guard.HasSameDay(materials, code, numerator.Entrata, today); err != nil {
		return CheckView{}, err
	}
	if _, v.OutboundToday, err = guard.HasSameDay(materials, code, numerator.Uscita, today); err != nil {
		return CheckView{}, err
	}
	if _, v.InboundAnyDay, err = guard.HasAny(materials, code, numerator.Entrata); err != nil {
		return CheckView{}, err
	}
	names, err := ddt.List(materials)
	if err != nil {
		return CheckView{}, err
	}
	if ref, ok := ddt.LatestOutbound(names); ok {
		v.LatestOutbound = ref.Name
	}
	return v, nil
}

func checkText(v CheckView) string {
	or := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	return fmt.Sprintf("order %s\n  inbound today:   %s\n  outbound today:  %s\n  inbound any day: %s\n  latest outbound: %s",
		v.OrderCode, or(v.InboundToday), or(v.OutboundToday), or(v.InboundAnyDay), or(v.LatestOutbound))
}
