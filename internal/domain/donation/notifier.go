package donation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/craftvale/craftvale-api/internal/domain/account"
	"github.com/craftvale/craftvale-api/internal/domain/rank"
	"github.com/craftvale/craftvale-api/internal/pkg/discord"
	"github.com/craftvale/craftvale-api/internal/pkg/ws"
)

// Notifier builds the post-commit fan-out tasks for a processed
// donation: Discord role sync, the on-stream alert, and the operator
// webhook. All of it is best effort.
type Notifier struct {
	discord    *discord.Client
	hub        *ws.Hub
	webhookURL string
}

// NewNotifier creates notifier
func NewNotifier(dc *discord.Client, hub *ws.Hub, webhookURL string) *Notifier {
	return &Notifier{discord: dc, hub: hub, webhookURL: webhookURL}
}

// RoleSyncTask returns a task that moves the account's Discord member
// onto the new tier's role, removing the previous tier's role when it
// differs. Nil when there is nothing to sync.
func (n *Notifier) RoleSyncTask(acc *account.Account, oldTier, newTier *rank.Tier) *Task {
	if n.discord == nil || !n.discord.Configured() {
		return nil
	}
	if acc == nil || !acc.DiscordUserID.Valid || newTier == nil || newTier.DiscordRoleID == "" {
		return nil
	}
	userID := acc.DiscordUserID.String
	addRole := newTier.DiscordRoleID
	var removeRole string
	if oldTier != nil && oldTier.DiscordRoleID != "" && oldTier.DiscordRoleID != addRole {
		removeRole = oldTier.DiscordRoleID
	}
	return &Task{
		Name: "discord_role_sync",
		Fn: func(ctx context.Context) error {
			if err := n.discord.AddMemberRole(ctx, userID, addRole); err != nil {
				return err
			}
			if removeRole != "" {
				if err := n.discord.RemoveMemberRole(ctx, userID, removeRole); err != nil {
					// Keep the new role even if the old one sticks.
					log.Warn().Err(err).Str("role_id", removeRole).Msg("failed to remove previous discord role")
				}
			}
			return nil
		},
	}
}

// AlertTask returns a task that pushes the donation alert to connected
// overlay clients.
func (n *Notifier) AlertTask(d *Donation, donorName string) *Task {
	if n.hub == nil {
		return nil
	}
	alert := ws.DonationAlert{
		DonorName: donorName,
		Amount:    d.Amount,
		Currency:  d.Currency,
		Message:   d.Note.String,
	}
	if d.RankID.Valid {
		alert.RankID = d.RankID.String
	}
	return &Task{
		Name: "donation_alert",
		Fn: func(ctx context.Context) error {
			n.hub.Broadcast(alert)
			return nil
		},
	}
}

// OperatorAlertTask returns a task that posts a summary of the
// donation to the operators' Discord channel.
func (n *Notifier) OperatorAlertTask(d *Donation, donorName string) *Task {
	if n.discord == nil || n.webhookURL == "" {
		return nil
	}
	content := fmt.Sprintf("New donation: %.2f %s from %s via %s", d.Amount, d.Currency, donorName, d.Provider)
	if d.RankID.Valid && d.Days.Valid {
		content += fmt.Sprintf(" (%s, %d days)", d.RankID.String, d.Days.Int64)
	}
	if d.IsGuest() {
		content += " [guest]"
	}
	url := n.webhookURL
	return &Task{
		Name: "operator_alert",
		Fn: func(ctx context.Context) error {
			return n.discord.ExecuteWebhook(ctx, url, discord.WebhookMessage{
				Content:  content,
				Username: "Donation Bot",
			})
		},
	}
}
