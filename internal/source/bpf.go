package source

import (
	"fmt"

	"golang.org/x/net/bpf"
)

const etherTypeIPv4 = 0x0800

// ipv4OnlyProgram accepts frames whose outer ethertype is IPv4, keeping at
// most snapLen bytes.
func ipv4OnlyProgram(snapLen int) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: etherTypeIPv4, SkipTrue: 1},
		bpf.RetConstant{Val: uint32(snapLen)},
		bpf.RetConstant{Val: 0},
	}
}

// CompileIPv4Only assembles the IPv4-only filter for a socket.
func CompileIPv4Only(snapLen int) ([]bpf.RawInstruction, error) {
	raw, err := bpf.Assemble(ipv4OnlyProgram(snapLen))
	if err != nil {
		return nil, fmt.Errorf("failed to assemble BPF filter: %w", err)
	}
	return raw, nil
}
