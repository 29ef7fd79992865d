package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nevindra/seer"
	"github.com/nevindra/seer/internal/config"
)

func newAskCmd(g *globalFlags) *cobra.Command {
	var in seer.TurnInput
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Run one turn and print its updates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Message = strings.Join(args, " ")
			if err := in.Validate(); err != nil {
				return err
			}
			cfg, err := config.Load(g.config, g.envFile)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, g.logger())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			ch := make(chan seer.Update, 8)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for u := range ch {
					printUpdate(out, u)
				}
			}()
			_, err = a.runner.Run(cmd.Context(), in, ch)
			<-done
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.UserID, "user", "cli", "user id (also the memory thread)")
	f.StringVar(&in.Name, "name", "", "user's name")
	f.StringVar(&in.BirthDay, "birth-day", "", "birth date, YYYY-MM-DD")
	f.StringVar(&in.TimeBirth, "birth-time", "", "birth time, HH:MM")
	f.StringVar(&in.City, "city", "", "birth city")
	f.StringVar(&in.Country, "country", "", "birth country")
	return cmd
}

func printUpdate(w io.Writer, u seer.Update) {
	switch {
	case u.Error != "":
		fmt.Fprintf(w, "[error] %s\n", u.Error)
	case u.NextNode != "":
		fmt.Fprintf(w, "[route] %s\n", u.NextNode)
	case len(u.TaroCards) > 0:
		names := make([]string, len(u.TaroCards))
		for i, c := range u.TaroCards {
			names[i] = c.Name
			if c.Reversed {
				names[i] += " (reversed)"
			}
		}
		fmt.Fprintf(w, "[cards] %s: %s\n", u.UnlockName, strings.Join(names, ", "))
	case u.MemoryCommitted != nil:
		fmt.Fprintf(w, "[memory] committed=%t\n", *u.MemoryCommitted)
	}
	if u.MessageToUser != "" {
		fmt.Fprintf(w, "\n%s\n\n", u.MessageToUser)
	}
}
