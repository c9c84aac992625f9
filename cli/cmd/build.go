package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/percy/percy-go/cli/render"
	"github.com/percy/percy-go/cli/tui"
	"github.com/percy/percy-go/client"
)

var errEmptyDocument = errors.New("response has no data")

// BuildRow is the display form of a build resource.
type BuildRow struct {
	ID          string `json:"id" yaml:"id"`
	Number      string `json:"number,omitempty" yaml:"number,omitempty"`
	State       string `json:"state" yaml:"state"`
	Branch      string `json:"branch,omitempty" yaml:"branch,omitempty"`
	CommitSha   string `json:"commit_sha,omitempty" yaml:"commit_sha,omitempty"`
	ReviewState string `json:"review_state,omitempty" yaml:"review_state,omitempty"`
	CreatedAt   string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	WebURL      string `json:"web_url,omitempty" yaml:"web_url,omitempty"`
}

// BuildCommand returns the build command with get and list subcommands.
func BuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Inspect builds",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Show one build",
				ArgsUsage: "<build-id>",
				Flags:     RemoteFlags(TUIFlag),
				Action:    buildGetAction,
			},
			{
				Name:  "list",
				Usage: "List a project's builds",
				Flags: RemoteFlags(
					&cli.StringFlag{Name: "sha", Usage: "Filter by commit SHA"},
					&cli.StringSliceFlag{Name: "shas", Usage: "Filter by any of several commit SHAs"},
					&cli.StringFlag{Name: "branch", Usage: "Filter by branch"},
					&cli.StringFlag{Name: "state", Usage: "Filter by state (pending, processing, finished, failed)"},
				),
				Action: buildListAction,
			},
		},
	}
}

func buildGetAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return configError("build get requires exactly one build id")
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return configError("%v", err)
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signalContext(c)
	defer stop()

	doc, err := s.client.GetBuild(ctx, c.Args().First())
	if err != nil {
		return remoteError("get build", err)
	}
	if doc.Data == nil {
		return remoteError("get build", errEmptyDocument)
	}
	row := buildRow(doc.Data)
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewBuild, buildDetail(row))
	}
	return r.Render(row)
}

func buildListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return configError("%v", err)
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	project := s.project(c)
	if project == "" {
		return configError("build list requires --project, PERCY_PROJECT or project in config")
	}

	ctx, stop := signalContext(c)
	defer stop()

	doc, err := s.client.GetBuilds(ctx, project, client.BuildFilter{
		SHA:    c.String("sha"),
		SHAs:   c.StringSlice("shas"),
		Branch: c.String("branch"),
		State:  c.String("state"),
	})
	if err != nil {
		return remoteError("list builds", err)
	}

	rows := make([]BuildRow, 0, len(doc.List))
	for i := range doc.List {
		rows = append(rows, buildRow(&doc.List[i]))
	}
	return r.Render(rows)
}

func buildRow(o *client.Object) BuildRow {
	return BuildRow{
		ID:          o.ID,
		Number:      attrString(o, "build-number"),
		State:       o.Attr("state"),
		Branch:      o.Attr("branch"),
		CommitSha:   o.Attr("commit-sha"),
		ReviewState: o.Attr("review-state"),
		CreatedAt:   o.Attr("created-at"),
		WebURL:      o.Attr("web-url"),
	}
}

func buildDetail(row BuildRow) *tui.Detail {
	title := "Build " + row.ID
	if row.Number != "" {
		title += " (#" + row.Number + ")"
	}
	return &tui.Detail{
		Title: title,
		Fields: []tui.Field{
			{Label: "State", Value: row.State},
			{Label: "Review", Value: row.ReviewState},
			{Label: "Branch", Value: row.Branch},
			{Label: "Commit", Value: row.CommitSha},
			{Label: "Created", Value: row.CreatedAt},
			{Label: "URL", Value: row.WebURL},
		},
	}
}

// attrString formats a scalar attribute; JSON numbers decode as float64.
func attrString(o *client.Object, name string) string {
	switch v := o.Attributes[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
