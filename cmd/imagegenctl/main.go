package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/client"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/detail"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/listview"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/submission"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/tui"
	"github.com/pixelforge/imagegen-backend/internal/platform/logger"
)

const defaultAPIURL = "http://localhost:8080/api/v1"

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "submit":
		runSubmit(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "download":
		runDownload(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: imagegenctl <submit|list|watch|download> [...]")
}

func apiFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("IMAGEGEN_API_URL")
	if def == "" {
		def = defaultAPIURL
	}
	return fs.String("api", def, "image generation API base URL")
}

func runSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	api := apiFlag(fs)
	prompt := fs.String("prompt", "", "text prompt (required)")
	aspect := fs.String("aspect-ratio", string(domain.DefaultAspectRatio), "aspect ratio")
	resolution := fs.String("resolution", string(domain.DefaultResolution), "1K, 2K or 4K")
	format := fs.String("format", string(domain.DefaultOutputFormat), "png or jpg")
	_ = fs.Parse(args)

	form := submission.NewForm()
	form.Prompt = *prompt
	form.AspectRatio = domain.AspectRatio(*aspect)
	form.Resolution = domain.Resolution(*resolution)
	form.OutputFormat = domain.OutputFormat(*format)

	files := make([]submission.File, 0, fs.NArg())
	for _, path := range fs.Args() {
		f, err := submission.LoadFile(path)
		if err != nil {
			fatalf("%v", err)
		}
		files = append(files, f)
	}
	report := form.Images.Stage(files)
	for _, msg := range report.Messages() {
		fmt.Fprintln(os.Stderr, "warning:", msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req, err := form.Submit(ctx, client.New(*api))
	if err != nil {
		var verrs domain.ValidationErrors
		if errors.As(err, &verrs) {
			for _, msg := range verrs.Messages() {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(2)
		}
		fatalf("%v", err)
	}

	fmt.Printf("accepted request %s (%s)\n", req.ID, req.Status)
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	api := apiFlag(fs)
	page := fs.Int("page", 1, "1-based page number")
	_ = fs.Parse(args)

	if *page < 1 {
		fatalf("--page must be >= 1")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := client.New(*api)
	total, err := c.Count(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	rows, err := c.List(ctx, listview.Offset(*page), listview.PageSize)
	if err != nil {
		fatalf("%v", err)
	}

	if total == 0 {
		fmt.Println("No requests yet.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tRATIO\tRES\tFORMAT\tPROMPT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status.Label(), detail.FormatTimestamp(r.CreatedAt, nil),
			r.AspectRatio, r.Resolution, r.OutputFormat, strings.Join(strings.Fields(r.Prompt), " "))
	}
	_ = tw.Flush()

	state := listview.State{Page: *page, Total: total}
	if footer := state.Footer(); footer != "" {
		fmt.Println()
		fmt.Println(footer)
	}
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	api := apiFlag(fs)
	dir := fs.String("dir", ".", "directory for downloaded images")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*api)
	// the terminal belongs to the UI, so controller logs are discarded
	ctrl := listview.NewController(c, listview.ClientFeed(c), logger.NewNop())
	go ctrl.Run(ctx)

	p := tea.NewProgram(tui.New(ctrl, c, *dir), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fatalf("%v", err)
	}
	stop()
	<-ctrl.Done()
}

func runDownload(args []string) {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	api := apiFlag(fs)
	dir := fs.String("dir", ".", "destination directory")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fatalf("usage: imagegenctl download [--dir DIR] <request-id>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c := client.New(*api)
	req, err := c.Get(ctx, fs.Arg(0))
	if err != nil {
		if client.IsNotFound(err) {
			fatalf("request %s not found", fs.Arg(0))
		}
		fatalf("%v", err)
	}

	v, err := detail.Open(*req)
	if err != nil {
		fatalf("request %s cannot be downloaded: %v", req.ID, err)
	}
	path, err := v.Download(ctx, c, *dir)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Println(path)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
