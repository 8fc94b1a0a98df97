package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/dmitrijs2005/invkeeper/internal/collection"
	"github.com/dmitrijs2005/invkeeper/internal/inventory"
	"github.com/dmitrijs2005/invkeeper/internal/logging"
	"github.com/dmitrijs2005/invkeeper/internal/models"
)

type App struct {
	items      *inventory.Service
	collection *collection.Sync
	logger     logging.Logger
	reader     *bufio.Reader
	out        io.Writer
}

func NewApp(items *inventory.Service, cs *collection.Sync, logger logging.Logger, in io.Reader, out io.Writer) *App {
	if logger == nil {
		logger = logging.Nop()
	}
	return &App{
		items:      items,
		collection: cs,
		logger:     logger,
		reader:     bufio.NewReader(in),
		out:        out,
	}
}

// Run starts the shell and returns when the user leaves or input ends.
func (a *App) Run(ctx context.Context) {
	printlnFn("Inventory shell (type 'help' for commands)")
	runREPL(ctx, a, a.reader)
}

// List prints the current item view.
func (a *App) List(ctx context.Context) error {
	items, err := a.collection.Current(ctx)
	if err != nil {
		return err
	}
	a.printItems(items)
	return nil
}

// Add prompts for a new item and saves it.
func (a *App) Add(ctx context.Context) error {
	return a.edit(ctx, inventory.NewForm())
}

// Edit prompts for changes to an existing item and saves it.
func (a *App) Edit(ctx context.Context, id string) error {
	item, err := a.items.Get(ctx, id)
	if err != nil {
		return err
	}
	return a.edit(ctx, inventory.EditForm(*item))
}

func (a *App) edit(ctx context.Context, f *inventory.Form) error {
	fmt.Fprintln(a.out, f.Title())

	name, err := GetTextDefault(a.reader, "Name", f.Name, a.out)
	if err != nil {
		return err
	}
	qty, err := GetInt(a.reader, "Quantity", f.Quantity, a.out)
	if err != nil {
		return err
	}
	f.Name = name
	f.Quantity = qty

	item, err := a.items.Save(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %s (%s)\n", item.Name, item.ID)
	return nil
}

// Upload ingests the file at path for item id, rendering progress as it goes.
func (a *App) Upload(ctx context.Context, id, path string) error {
	view := newProgressView(a.out)
	item, err := a.items.AttachAsset(ctx, id, path, true, view.event)
	view.end()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Asset: %s\n", deref(item.AssetLink))
	if item.ThumbnailLink != nil {
		fmt.Fprintf(a.out, "Thumbnail: %s\n", *item.ThumbnailLink)
	}
	return nil
}

// Delete removes an item and its files.
func (a *App) Delete(ctx context.Context, id string) error {
	if err := a.items.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s\n", id)
	return nil
}

// Watch prints every new view of the collection until a line is entered.
func (a *App) Watch(ctx context.Context) error {
	var (
		mu      sync.Mutex
		stopped bool
	)
	h, err := a.collection.Subscribe(func(items []models.Item) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		fmt.Fprintf(a.out, "--- %d item(s)\n", len(items))
		a.printItems(items)
	})
	if err != nil {
		return err
	}
	printlnFn("Watching, press Enter to stop")

	_, _ = readLine(a.reader)

	mu.Lock()
	stopped = true
	mu.Unlock()
	a.collection.Unsubscribe(h)
	return nil
}

func (a *App) printItems(items []models.Item) {
	if len(items) == 0 {
		fmt.Fprintln(a.out, "(no items)")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tMODEL\tTHUMBNAIL")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", it.ID, it.Name, it.Quantity, mark(it.AssetLink), mark(it.ThumbnailLink))
	}
	_ = tw.Flush()
}

func mark(link *string) string {
	if link == nil {
		return "-"
	}
	return "yes"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
