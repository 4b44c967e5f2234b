package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/value"
)

const (
	formatArchive = "archive"
	formatMsgpack = "msgpack"
)

func newValueCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "value",
		Short: "Convert values between JSON, the archive format and msgpack",
	}
	cmd.AddCommand(newValueEncodeCommand(), newValueDecodeCommand())
	return cmd
}

func newValueEncodeCommand() *cobra.Command {
	var format string
	var raw bool
	cmd := &cobra.Command{
		Use:   "encode [json]",
		Short: "Encode a JSON document (argument or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var v value.Value
			if err := json.Unmarshal(input, &v); err != nil {
				return errors.Wrap(errors.PhaseParse, errors.KindInvalidData, err, "json input")
			}
			data, err := encodeValue(v, format)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if raw {
				_, err = out.Write(data)
				return err
			}
			fmt.Fprintln(out, hex.EncodeToString(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatArchive, "output format: archive or msgpack")
	cmd.Flags().BoolVar(&raw, "raw", false, "write bytes instead of hex")
	return cmd
}

func newValueDecodeCommand() *cobra.Command {
	var format string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "decode [hex]",
		Short: "Decode a hex encoded value (argument or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			data, err := hex.DecodeString(strings.Join(strings.Fields(string(input)), ""))
			if err != nil {
				return errors.Wrap(errors.PhaseParse, errors.KindInvalidData, err, "hex input")
			}
			v, err := decodeValue(data, format)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				b, err := json.MarshalIndent(v, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
				return nil
			}
			fmt.Fprintln(out, v.String())
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatArchive, "input format: archive or msgpack")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of the value dump")
	return cmd
}

func encodeValue(v value.Value, format string) ([]byte, error) {
	switch format {
	case formatArchive:
		return v.Archive()
	case formatMsgpack:
		b, err := msgpack.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseArchive, errors.KindInvalidData, err, "msgpack")
		}
		return b, nil
	default:
		return nil, errors.Unsupported(errors.PhaseArchive, "format "+format)
	}
}

func decodeValue(data []byte, format string) (value.Value, error) {
	switch format {
	case formatArchive:
		v, n, err := value.Unarchive(data, nil)
		if err != nil {
			return value.Undefined(), err
		}
		if n != len(data) {
			return value.Undefined(), errors.InvalidData(errors.PhaseUnarchive,
				fmt.Sprintf("%d trailing bytes", len(data)-n))
		}
		return v, nil
	case formatMsgpack:
		var v value.Value
		if err := msgpack.Unmarshal(data, &v); err != nil {
			return value.Undefined(), err
		}
		return v, nil
	default:
		return value.Undefined(), errors.Unsupported(errors.PhaseUnarchive, "format "+format)
	}
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 {
		return []byte(args[0]), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidInput, err, "read stdin")
	}
	return b, nil
}
