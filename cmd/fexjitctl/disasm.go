package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/klauspost/asmfmt"
	"github.com/spf13/cobra"

	"github.com/FEX-Emu/FEX-sub016/internal/jit"
)

func newDisasmCmd() *cobra.Command {
	var offset, length, tailOffset int

	cmd := &cobra.Command{
		Use:   "disasm <file>",
		Short: "List the raw instruction words of a compiled block dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read dump: %w", err)
			}
			if offset < 0 || offset > len(data) {
				return fmt.Errorf("offset %d out of range for a %d-byte file", offset, len(data))
			}
			end := len(data)
			if length > 0 && offset+length < end {
				end = offset + length
			}
			if err := printDisasm(cmd.OutOrStdout(), data, offset, end); err != nil {
				return err
			}
			if tailOffset > 0 {
				return printTail(cmd.OutOrStdout(), data, tailOffset)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "byte offset to start listing from")
	cmd.Flags().IntVar(&length, "length", 0, "number of bytes to list (0 means to end of file)")
	cmd.Flags().IntVar(&tailOffset, "tail-offset", 0, "also decode the JITCodeTail at this byte offset")
	return cmd
}

// printTail decodes and reports the JITCodeTail (and its RIP entries)
// at a caller-supplied offset; the tail's position comes from the
// block's JITCodeHeader, which this tool has no independent way to
// locate in a raw dump, so it must be passed explicitly.
func printTail(w interface{ Write([]byte) (int, error) }, data []byte, tailOffset int) error {
	tail, entries := jit.ReadTail(data, tailOffset)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "guest_rip=0x%x size=%d rip_entries=%d\n", tail.GuestRIP, tail.Size, tail.RIPEntriesCount)
	for i, e := range entries {
		fmt.Fprintf(&buf, "  [%d] host_pc_delta=%+d guest_rip_delta=%+d\n", i, e.HostPCDelta, e.GuestRIPDelta)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// printDisasm renders each 32-bit instruction word in [offset, end) as a
// WORD directive annotated with its buffer offset, then hands the whole
// listing to asmfmt so columns line up the way a real Plan9-syntax
// listing would (there is no disassembler library in this stack; this gives a
// byte-exact, still-readable view of what the emitter produced).
func printDisasm(w interface{ Write([]byte) (int, error) }, data []byte, offset, end int) error {
	var buf bytes.Buffer
	buf.WriteString("TEXT ·block(SB), $0\n")
	for i := offset; i+4 <= end; i += 4 {
		word := binary.LittleEndian.Uint32(data[i:])
		fmt.Fprintf(&buf, "\tWORD $0x%08x // +0x%04x\n", word, i)
	}
	buf.WriteString("\tRET\n")

	formatted, err := asmfmt.Format(&buf)
	if err != nil {
		// asmfmt is a readability aid; fall back to the unformatted
		// listing rather than fail the whole command over it.
		_, werr := w.Write(buf.Bytes())
		return werr
	}
	_, err = w.Write(formatted)
	return err
}
