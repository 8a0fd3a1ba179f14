package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/moffa90/go-mcumgr/firmware"
	"github.com/moffa90/go-mcumgr/fs"
	"github.com/moffa90/go-mcumgr/transfer"
	"github.com/moffa90/go-mcumgr/upgrade"
)

// dispatch runs the named command. Every command connects first.
func (a *app) dispatch(ctx context.Context, name string, args []string) error {
	cmd, ok := map[string]struct {
		nargs, maxArgs int
		run            func(context.Context, []string) error
	}{
		"stat":     {1, 1, a.stat},
		"hash":     {1, 1, a.hash},
		"upload":   {2, 2, a.upload},
		"download": {2, 2, a.download},
		"upgrade":  {1, 1, a.upgrade},
		"images":   {0, 0, a.listImages},
		"erase":    {0, 1, a.erase},
		"confirm":  {0, 1, a.confirm},
		"reset":    {0, 0, a.reset},
		"echo":     {1, -1, a.echo},
	}[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	if len(args) < cmd.nargs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		return fmt.Errorf("%w: wrong number of arguments for %s", errUsage, name)
	}

	if err := a.client.Connect(ctx); err != nil {
		return err
	}
	return cmd.run(ctx, args)
}

func (a *app) stat(ctx context.Context, args []string) error {
	size, err := a.files.Status(ctx, args[0])
	if err != nil {
		return err
	}
	if size == fs.NotFound {
		return fmt.Errorf("%s: not found", args[0])
	}
	fmt.Fprintf(a.stdout, "%s: %d bytes\n", args[0], size)
	return nil
}

func (a *app) hash(ctx context.Context, args []string) error {
	digest, ok, err := a.files.Hash(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: not found", args[0])
	}
	fmt.Fprintf(a.stdout, "%s  %s\n", digest, args[0])
	return nil
}

func (a *app) upload(ctx context.Context, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	s, err := a.files.Write(ctx, args[1], data, transfer.WithProgressCallback(a.transferProgress))
	if err != nil {
		return err
	}
	res := wait(ctx, s)
	fmt.Fprintln(a.stderr)
	if res.Err != nil {
		return res.Err
	}
	fmt.Fprintf(a.stdout, "wrote %d bytes to %s in %s\n", res.Bytes, args[1], res.Elapsed.Round(time.Millisecond))
	return nil
}

func (a *app) download(ctx context.Context, args []string) error {
	s, err := a.files.Download(ctx, args[0], transfer.WithProgressCallback(a.transferProgress))
	if err != nil {
		return err
	}
	res := wait(ctx, s)
	fmt.Fprintln(a.stderr)
	if res.Err != nil {
		return res.Err
	}
	if err := os.WriteFile(args[1], res.Data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "read %d bytes from %s\n", len(res.Data), args[0])
	return nil
}

func (a *app) upgrade(ctx context.Context, args []string) error {
	img, err := firmware.Load(args[0])
	if err != nil {
		return err
	}

	opts, err := a.cfg.UpgradeOptions(a.log)
	if err != nil {
		return err
	}
	opts = append(opts,
		upgrade.WithProgressCallback(func(p upgrade.Progress) {
			if p.Phase == upgrade.PhaseUploading {
				fmt.Fprintf(a.stderr, "\r[%s] %5.1f%% (%d/%d bytes)", p.Phase, p.Percentage, p.BytesSent, p.TotalBytes)
			}
		}),
		upgrade.WithStateCallback(func(p upgrade.Phase, s upgrade.State) {
			fmt.Fprintf(a.stderr, "\nphase %s (%s)", p, s)
		}),
	)

	up := upgrade.New(a.client, opts...)
	if err := up.Start(ctx, img); err != nil {
		return err
	}

	select {
	case <-up.Done():
	case <-ctx.Done():
		if err := up.Cancel(); err != nil {
			fmt.Fprintf(a.stderr, "\n%v; waiting for the workflow to finish", err)
		}
		<-up.Done()
	}
	fmt.Fprintln(a.stderr)

	if err := up.Err(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "upgrade complete: %d bytes, sha256 %s\n", img.Size(), hex.EncodeToString(img.Hash[:]))
	return nil
}

func (a *app) listImages(ctx context.Context, _ []string) error {
	slots, err := a.images.State(ctx)
	if err != nil {
		return err
	}
	for _, s := range slots {
		var flags []string
		for _, f := range []struct {
			set  bool
			name string
		}{
			{s.Active, "active"},
			{s.Confirmed, "confirmed"},
			{s.Pending, "pending"},
			{s.Permanent, "permanent"},
			{s.Bootable, "bootable"},
		} {
			if f.set {
				flags = append(flags, f.name)
			}
		}
		fmt.Fprintf(a.stdout, "image=%d slot=%d version=%s hash=%s flags=%s\n",
			s.Image, s.Slot, s.Version, hex.EncodeToString(s.Hash), strings.Join(flags, ","))
	}
	return nil
}

func (a *app) erase(ctx context.Context, args []string) error {
	slot := uint64(1)
	if len(args) == 1 {
		v, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid slot %q: %w", args[0], err)
		}
		slot = v
	}
	if err := a.images.Erase(ctx, uint32(slot)); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "erased slot %d\n", slot)
	return nil
}

func (a *app) confirm(ctx context.Context, args []string) error {
	var hash []byte
	if len(args) == 1 {
		h, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("invalid hash %q: %w", args[0], err)
		}
		hash = h
	}
	if _, err := a.images.Confirm(ctx, hash); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "confirmed")
	return nil
}

func (a *app) reset(ctx context.Context, _ []string) error {
	if err := a.os.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "reset requested")
	return nil
}

func (a *app) echo(ctx context.Context, args []string) error {
	r, err := a.os.Echo(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, r)
	return nil
}

func (a *app) transferProgress(p transfer.Progress) {
	fmt.Fprintf(a.stderr, "\r%5.1f%% (%d/%d bytes)", p.Percentage, p.Bytes, p.Total)
}

// wait blocks until s finishes, canceling it when ctx ends.
func wait(ctx context.Context, s *transfer.Session) transfer.Result {
	select {
	case <-s.Done():
	case <-ctx.Done():
		s.Cancel()
	}
	return s.Wait()
}
