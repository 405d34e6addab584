package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hydro-project/anna/internal/client"
	"github.com/hydro-project/anna/internal/config"
	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/placement"
	"github.com/hydro-project/anna/internal/wire"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := &cobra.Command{
		Use:   "anna-cli <config-path> [<command-file>]",
		Short: "Interactive client for the anna key-value store",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			commandFile := ""
			if len(args) > 1 {
				commandFile = args[1]
			}
			return run(args[0], commandFile)
		},
		SilenceUsage: true,
	}
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath, commandFile string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := zap.NewNop()

	targets := cfg.User.Routing
	if len(targets) == 0 {
		// no routing tier configured; talk to the memory threads directly
		for tid := uint32(0); tid < cfg.Threads.Memory; tid++ {
			targets = append(targets,
				fmt.Sprintf("%s:%d", cfg.User.IP, placement.BaseStoragePort+tid))
		}
	}

	kvs, err := client.New(targets, cfg.User.IP, logger)
	if err != nil {
		return err
	}
	defer kvs.Close()

	input := os.Stdin
	interactive := true
	if commandFile != "" {
		f, err := os.Open(commandFile)
		if err != nil {
			return err
		}
		defer f.Close()
		input = f
		interactive = false
	}

	repl(kvs, input, os.Stdout, interactive)
	return nil
}

func repl(kvs *client.Client, in io.Reader, out io.Writer, interactive bool) {
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "kvs> ")
		}
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		command := strings.ToUpper(fields[0])
		if command == "QUIT" || command == "EXIT" {
			return
		}
		if err := execute(kvs, out, command, fields[1:]); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func execute(kvs *client.Client, out io.Writer, command string, args []string) error {
	switch command {
	case "GET":
		if len(args) != 1 {
			return fmt.Errorf("usage: GET <key>")
		}
		tuple, err := kvs.Get(args[0])
		if err != nil {
			return err
		}
		if tuple.Error != wire.NoError {
			fmt.Fprintln(out, tuple.Error)
			return nil
		}
		lww, err := wire.DeserializeLWW(tuple.Payload)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, lww.Value)

	case "PUT":
		if len(args) != 2 {
			return fmt.Errorf("usage: PUT <key> <value>")
		}
		payload, err := wire.SerializeLWW(
			lattice.NewLWW(uint64(time.Now().UnixMilli()), args[1]))
		if err != nil {
			return err
		}
		tuple, err := kvs.Put(args[0], lattice.TypeLWW, payload)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, tuple.Error)

	case "GET_SET":
		if len(args) != 1 {
			return fmt.Errorf("usage: GET_SET <key>")
		}
		tuple, err := kvs.Get(args[0])
		if err != nil {
			return err
		}
		if tuple.Error != wire.NoError {
			fmt.Fprintln(out, tuple.Error)
			return nil
		}
		set, err := wire.DeserializeSet(tuple.Payload)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "{ %s }\n", strings.Join(set.Reveal(), " "))

	case "PUT_SET":
		if len(args) < 2 {
			return fmt.Errorf("usage: PUT_SET <key> <value> [<value> ...]")
		}
		payload, err := wire.SerializeSet(lattice.NewSet(args[1:]...))
		if err != nil {
			return err
		}
		tuple, err := kvs.Put(args[0], lattice.TypeSet, payload)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, tuple.Error)

	case "GET_CAUSAL":
		if len(args) != 1 {
			return fmt.Errorf("usage: GET_CAUSAL <key>")
		}
		tuple, err := kvs.Get(args[0])
		if err != nil {
			return err
		}
		if tuple.Error != wire.NoError {
			fmt.Fprintln(out, tuple.Error)
			return nil
		}
		causal, err := wire.DeserializeSingleCausal(tuple.Payload)
		if err != nil {
			return err
		}
		for id, counter := range causal.Clock.Reveal() {
			fmt.Fprintf(out, "%s : %d\n", id, counter)
		}
		fmt.Fprintf(out, "{ %s }\n", strings.Join(causal.Values.Reveal(), " "))

	case "PUT_CAUSAL":
		if len(args) != 2 {
			return fmt.Errorf("usage: PUT_CAUSAL <key> <value>")
		}
		causal := lattice.NewSingleCausal(
			lattice.NewVectorClock(map[string]uint64{
				"CLIENT": uint64(time.Now().UnixMilli()),
			}),
			lattice.NewSet(args[1]),
		)
		payload, err := wire.SerializeSingleCausal(causal)
		if err != nil {
			return err
		}
		tuple, err := kvs.Put(args[0], lattice.TypeSingleCausal, payload)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, tuple.Error)

	default:
		return fmt.Errorf("unknown command %s", command)
	}
	return nil
}
