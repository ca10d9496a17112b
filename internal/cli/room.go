package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var ErrNoRoom = errors.New("server returned no room")

// Room is the generate-room response.
type Room struct {
	RoomID  string `json:"roomId"`
	RoomURL string `json:"roomUrl"`
}

func newRoomCommand(v *viper.Viper) *cobra.Command {
	room := &cobra.Command{
		Use:   "room",
		Short: "Manage consultation rooms",
	}
	room.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Ask the server for a fresh room and its patient link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			base, err := HTTPBase(cfg.Server)
			if err != nil {
				return err
			}
			r, err := CreateRoom(cmd.Context(), http.DefaultClient, base)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "room: %s\nlink: %s\n", r.RoomID, r.RoomURL)
			return nil
		},
	})
	return room
}

func CreateRoom(ctx context.Context, hc *http.Client, base string) (Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/virtual-consultation/generate-room", nil)
	if err != nil {
		return Room{}, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Room{}, fmt.Errorf("generate room: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Room{}, fmt.Errorf("generate room: %s", resp.Status)
	}
	var r Room
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Room{}, fmt.Errorf("generate room: %w", err)
	}
	if r.RoomID == "" {
		return Room{}, ErrNoRoom
	}
	return r, nil
}
