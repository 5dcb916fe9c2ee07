package models

import (
	"sort"
	"strings"
)

// AllowList は承認を許可されたSlackユーザーIDの集合
type AllowList struct {
	members map[string]struct{}
}

// ParseAllowList はカンマ区切りのユーザーIDリストを解析する
// 空白をトリムし、空の要素は捨てる。結果が空ならConfigErrorを返す
func ParseAllowList(raw string) (AllowList, error) {
	members := make(map[string]struct{})
	for _, id := range strings.Split(raw, ",") {
		cleaned := cleanUserID(id)
		if cleaned == "" {
			continue
		}
		members[cleaned] = struct{}{}
	}

	if len(members) == 0 {
		return AllowList{}, NewConfigError("AUTHORIZED_USERS must contain at least one user ID")
	}

	return AllowList{members: members}, nil
}

// IsAuthorized は完全一致でメンバーかどうかを判定する（大文字小文字も区別する）
func (l AllowList) IsAuthorized(actor string) bool {
	_, ok := l.members[actor]
	return ok
}

// Len はメンバー数を返す
func (l AllowList) Len() int {
	return len(l.members)
}

// Members はソート済みのメンバー一覧を返す
func (l AllowList) Members() []string {
	members := make([]string, 0, len(l.members))
	for id := range l.members {
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}

// cleanUserID はメンション形式 <@ID>, <@ID|name>, @ID をユーザーIDに変換する
func cleanUserID(userID string) string {
	userID = strings.TrimSpace(userID)

	if strings.HasPrefix(userID, "<@") && strings.HasSuffix(userID, ">") {
		userID = strings.TrimPrefix(strings.TrimSuffix(userID, ">"), "<@")
		if i := strings.Index(userID, "|"); i >= 0 {
			userID = userID[:i]
		}
		return strings.TrimSpace(userID)
	}

	return strings.TrimPrefix(userID, "@")
}
