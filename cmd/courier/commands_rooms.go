package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/courier/internal/api"
	"github.com/haasonsaas/courier/internal/auth"
	"github.com/haasonsaas/courier/internal/config"
	"github.com/haasonsaas/courier/internal/rooms"
	"github.com/haasonsaas/courier/internal/store"
	"github.com/haasonsaas/courier/pkg/models"
)

func buildRoomsCmd() *cobra.Command {
	roomsCmd := &cobra.Command{
		Use:   "rooms",
		Short: "Manage chat rooms",
	}
	roomsCmd.AddCommand(
		buildRoomsListCmd(),
		buildRoomsCreateCmd(),
		buildRoomsLeaveCmd(),
		buildRoomsTransferCmd(),
	)
	return roomsCmd
}

func roomContext(cmd *cobra.Command) (*config.Config, *api.Client, *auth.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	authStore := restoreAuth()
	if !authStore.Authenticated() {
		return nil, nil, nil, fmt.Errorf("not signed in, run: courier login")
	}
	return cfg, newAPIClient(cfg, authStore), authStore, nil
}

// cachedRooms reads the room list from the local cache, when enabled.
func cachedRooms(cfg *config.Config) ([]models.Room, error) {
	if !cfg.Cache.Enabled {
		return nil, fmt.Errorf("cache disabled")
	}
	localStore, err := store.Open(cfg.Cache.Path)
	if err != nil {
		return nil, err
	}
	defer localStore.Close()
	return localStore.Rooms()
}

// saveRoomCache refreshes the cached room list. Best effort.
func saveRoomCache(cfg *config.Config, roomList []models.Room) {
	if !cfg.Cache.Enabled {
		return
	}
	localStore, err := store.Open(cfg.Cache.Path)
	if err != nil {
		return
	}
	defer localStore.Close()
	_ = localStore.SaveRooms(roomList)
}

// fetchRoom resolves a room by id from the member room list.
func fetchRoom(ctx context.Context, client *api.Client, roomID string) (*models.Room, error) {
	memberRooms, err := client.MemberRooms(ctx)
	if err != nil {
		return nil, err
	}
	for i := range memberRooms {
		if memberRooms[i].ID == roomID {
			return &memberRooms[i], nil
		}
	}
	return nil, fmt.Errorf("room %s not found among your rooms", roomID)
}

func buildRoomsListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, _, err := roomContext(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			memberRooms, err := client.MemberRooms(cmd.Context())
			if err != nil {
				// Fall back to the cached list when the backend is
				// unreachable.
				cached, cacheErr := cachedRooms(cfg)
				if cacheErr != nil {
					return err
				}
				for _, room := range cached {
					fmt.Fprintf(out, "%s\t%s\t%d members\t(cached)\n", room.ID, room.Name, len(room.Members))
				}
				return nil
			}
			saveRoomCache(cfg, memberRooms)
			for _, room := range memberRooms {
				fmt.Fprintf(out, "%s\t%s\t%d members\n", room.ID, room.Name, len(room.Members))
			}

			if !all {
				return nil
			}
			otherRooms, err := client.OtherRooms(cmd.Context())
			if err != nil {
				return err
			}
			for _, room := range otherRooms {
				fmt.Fprintf(out, "%s\t%s\t%d members\t(not joined)\n", room.ID, room.Name, len(room.Members))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include rooms you are not a member of")
	return cmd
}

func buildRoomsCreateCmd() *cobra.Command {
	var name string
	var members []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, _, err := roomContext(cmd)
			if err != nil {
				return err
			}
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}

			room, err := client.CreateRoom(cmd.Context(), api.CreateRoomRequest{
				Name:      name,
				MemberIDs: members,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created room %s (%s)\n", room.Name, room.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Room name")
	cmd.Flags().StringSliceVar(&members, "members", nil, "User ids to add as members")
	return cmd
}

func buildRoomsLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave <room-id>",
		Short: "Leave a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, authStore, err := roomContext(cmd)
			if err != nil {
				return err
			}

			room, err := fetchRoom(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}

			svc := rooms.NewService(client, nil)
			if err := svc.Leave(cmd.Context(), room, authStore.UserID()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Left room %s\n", room.Name)
			return nil
		},
	}
}

func buildRoomsTransferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <room-id> <new-owner-id>",
		Short: "Transfer room ownership to another member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, _, err := roomContext(cmd)
			if err != nil {
				return err
			}

			room, err := fetchRoom(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}

			svc := rooms.NewService(client, nil)
			updated, err := svc.Transfer(cmd.Context(), room, args[1])
			if err != nil {
				return err
			}
			owner := updated.Owner()
			fmt.Fprintf(cmd.OutOrStdout(), "Room %s is now owned by %s\n", updated.Name, owner.Username)
			return nil
		},
	}
}
