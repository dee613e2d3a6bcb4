/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	serial "github.com/allbin/go-pollserial"
	"github.com/allbin/go-pollserial/modbus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// registersCmd represents the registers command
var registersCmd = &cobra.Command{
	Use:   "registers <port>",
	Short: "Read Modbus RTU registers",
	Long: `Read holding or input registers from a Modbus RTU slave.

The request runs over the poll-based transport, so Ctrl+C aborts a
request that is waiting for a response.

Example usage:
  pollserial registers /dev/ttyUSB0 --slave 1 --address 0 --count 10
  pollserial registers pollserial:///dev/ttyUSB0 --baud 9600 --input --address 0x30`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slave, _ := cmd.Flags().GetUint8("slave")
		address, _ := cmd.Flags().GetUint16("address")
		count, _ := cmd.Flags().GetUint16("count")
		input, _ := cmd.Flags().GetBool("input")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		if count == 0 || count > 125 {
			return fmt.Errorf("count must be between 1 and 125, got %d", count)
		}

		var opts []serial.Option
		if viper.GetBool("exclusive") {
			opts = append(opts, serial.WithExclusive())
		}

		client, err := modbus.Dial(modbus.Config{
			URL:      args[0],
			SlaveID:  slave,
			BaudRate: viper.GetInt("baud"),
			Timeout:  timeout,
			Logger:   logger,
			Options:  opts,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			<-sigChan
			_ = client.Abort()
		}()

		read := client.ReadHoldingRegisters
		if input {
			read = client.ReadInputRegisters
		}
		data, err := read(address, count)
		if err != nil {
			if errors.Is(err, modbus.ErrAborted) {
				return errors.New("request aborted")
			}
			return err
		}

		printRegisters(os.Stdout, address, modbus.Registers(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registersCmd)

	registersCmd.Flags().Uint8P("slave", "s", 1, "Slave address")
	registersCmd.Flags().Uint16P("address", "a", 0, "First register address")
	registersCmd.Flags().Uint16P("count", "n", 1, "Number of registers (1-125)")
	registersCmd.Flags().Bool("input", false, "Read input registers instead of holding registers")
	registersCmd.Flags().Duration("timeout", time.Second, "Response timeout")
}

func printRegisters(w io.Writer, address uint16, regs []uint16) {
	for i, value := range regs {
		fmt.Fprintf(w, "%5d (0x%04X): %5d  0x%04X\n", int(address)+i, int(address)+i, value, value)
	}
}
