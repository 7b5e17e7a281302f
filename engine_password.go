package userauth

import (
	"context"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/flows"
)

// ChangePassword replaces the password of a signed-in user after checking
// the old one. [ErrInvalidPassword] is returned on mismatch and
// [ErrPasswordPolicy] when the new password is rejected. Every session
// other than CurrentSessionID is revoked.
func (e *Engine) ChangePassword(ctx context.Context, cmd ChangePassword) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunChangePassword(ctx, cmd.UserID, cmd.OldPassword, cmd.NewPassword, cmd.CurrentSessionID, flows.ChangePasswordDeps{
		Users:          e.users,
		Sessions:       e.sessions,
		Refresh:        e.refresh,
		VerifyPassword: e.hasher.Verify,
		HashPassword:   e.hasher.Hash,
		CheckPolicy:    e.config.PasswordPolicy.Check,
		Hooks:          e.hooks(),
		Errors:         flowErrors(),
	})
}
