package chat

import (
	"fmt"

	"campus-chat/errors"
)

// Role forms a strict hierarchy: owner > admin > moderator > member > guest.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
	RoleGuest     Role = "guest"
)

var roleRank = map[Role]int{
	RoleGuest:     1,
	RoleMember:    2,
	RoleModerator: 3,
	RoleAdmin:     4,
	RoleOwner:     5,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Outranks reports whether r is strictly above other.
func (r Role) Outranks(other Role) bool {
	return roleRank[r] > roleRank[other]
}

func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

type Permission string

const (
	PermReadMessages          Permission = "read_messages"
	PermSendMessage           Permission = "send_message"
	PermReact                 Permission = "react"
	PermTyping                Permission = "typing"
	PermShareFiles            Permission = "share_files"
	PermCreateThread          Permission = "create_thread"
	PermEditOwnMessage        Permission = "edit_own_message"
	PermDeleteOwnMessage      Permission = "delete_own_message"
	PermDeleteAnyMessage      Permission = "delete_any_message"
	PermPinMessage            Permission = "pin_message"
	PermResolveAnyThread      Permission = "resolve_any_thread"
	PermMentionEveryone       Permission = "mention_everyone"
	PermWarn                  Permission = "warn"
	PermMute                  Permission = "mute"
	PermKick                  Permission = "kick"
	PermReviewAppeal          Permission = "review_appeal"
	PermBan                   Permission = "ban"
	PermChangeRole            Permission = "change_role"
	PermUpdateSettings        Permission = "update_settings"
	PermAnnounce              Permission = "announce"
	PermReviewEscalatedAppeal Permission = "review_escalated_appeal"
	PermArchiveRoom           Permission = "archive_room"
)

var (
	guestPermissions = []Permission{
		PermReadMessages, PermSendMessage, PermReact, PermTyping,
	}
	memberPermissions = append(guestPermissions,
		PermShareFiles, PermCreateThread, PermEditOwnMessage, PermDeleteOwnMessage,
	)
	moderatorPermissions = append(memberPermissions,
		PermDeleteAnyMessage, PermPinMessage, PermResolveAnyThread, PermMentionEveryone,
		PermWarn, PermMute, PermKick, PermBan, PermReviewAppeal,
	)
	adminPermissions = append(moderatorPermissions,
		PermChangeRole, PermUpdateSettings, PermAnnounce, PermReviewEscalatedAppeal,
	)
	ownerPermissions = append(adminPermissions, PermArchiveRoom)
)

var permissionSets = map[Role]map[Permission]struct{}{
	RoleGuest:     toSet(guestPermissions),
	RoleMember:    toSet(memberPermissions),
	RoleModerator: toSet(moderatorPermissions),
	RoleAdmin:     toSet(adminPermissions),
	RoleOwner:     toSet(ownerPermissions),
}

func toSet(perms []Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Can is the single place where a role is mapped to what it may do.
func (r Role) Can(perm Permission) bool {
	_, ok := permissionSets[r][perm]
	return ok
}

// Authorize returns a PermissionError when role lacks perm.
func Authorize(role Role, perm Permission) error {
	if role.Can(perm) {
		return nil
	}
	return errors.Permission("insufficient_role",
		fmt.Sprintf("role %s cannot %s", role, perm))
}

// AuthorizeOver checks perm and that actor strictly outranks target.
func AuthorizeOver(actor, target Role, perm Permission) error {
	if err := Authorize(actor, perm); err != nil {
		return err
	}
	if !actor.Outranks(target) {
		return errors.Permission("insufficient_rank",
			fmt.Sprintf("role %s does not outrank %s", actor, target))
	}
	return nil
}
