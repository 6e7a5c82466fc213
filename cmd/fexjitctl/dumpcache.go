package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FEX-Emu/FEX-sub016/internal/codecache"
)

func newDumpCacheCmd() *cobra.Command {
	var inserts []string

	cmd := &cobra.Command{
		Use:   "dump-cache",
		Short: "Replay guest:host mappings through a lookup cache and report occupancy",
		Long: "dump-cache builds a fresh lookup cache, applies the given " +
			"guest_rip:host_ptr mappings, and reports entry counts and " +
			"lookup results — a harness for exercising internal/codecache's " +
			"public behavior without a live JIT process attached.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache := codecache.New(codecache.DefaultConfig)
			guestRIPs := make([]uint64, 0, len(inserts))

			for _, kv := range inserts {
				guestRIP, hostPtr, err := parseMapping(kv)
				if err != nil {
					return err
				}
				cache.Insert(guestRIP, hostPtr)
				guestRIPs = append(guestRIPs, guestRIP)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "entries: %d\n", cache.Len())
			for _, g := range guestRIPs {
				fmt.Fprintf(out, "  0x%x -> 0x%x\n", g, cache.Lookup(g))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&inserts, "insert", nil, "guest_rip:host_ptr mapping, repeatable")
	return cmd
}

func parseMapping(kv string) (guestRIP, hostPtr uint64, err error) {
	parts := strings.SplitN(kv, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("--insert %q: want guest_rip:host_ptr", kv)
	}
	guestRIP, err = strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("--insert %q: bad guest_rip: %w", kv, err)
	}
	hostPtr, err = strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("--insert %q: bad host_ptr: %w", kv, err)
	}
	return guestRIP, hostPtr, nil
}
