package thumbnail

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

var commandContext = exec.CommandContext

// CommandDeriver runs an external renderer. Args may reference {in}, {out}
// and {size}; the renderer must write an image to {out}.
type CommandDeriver struct {
	Program    string
	Args       []string
	ScratchDir string
}

// ParseCommand splits a command line such as
// "usdrecord --imageWidth {size} {in} {out}" into a CommandDeriver.
func ParseCommand(line, scratchDir string) (*CommandDeriver, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty thumbnail command")
	}
	return &CommandDeriver{Program: fields[0], Args: fields[1:], ScratchDir: scratchDir}, nil
}

func (c *CommandDeriver) Derive(ctx context.Context, assetPath string, size int) (image.Image, error) {
	out, err := os.CreateTemp(c.ScratchDir, "thumb-*.png")
	if err != nil {
		return nil, fmt.Errorf("create thumbnail scratch: %w", err)
	}
	outPath := out.Name()
	_ = out.Close()
	defer os.Remove(outPath)

	r := strings.NewReplacer("{in}", assetPath, "{out}", outPath, "{size}", strconv.Itoa(size))
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = r.Replace(a)
	}

	cmd := commandContext(ctx, c.Program, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(c.Program), err, strings.TrimSpace(string(output)))
	}

	img, err := imaging.Open(outPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode rendered thumbnail: %w", err)
	}
	return Fit(img, size), nil
}
