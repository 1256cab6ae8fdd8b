package members

// NewMeta создаёт meta для первого события пользователя.
func NewMeta(t Transition) Meta {
	return Meta{
		UserData:      t.Profile,
		StatusHistory: []string{t.NewStatus},
		UserHistory:   []Identity{IdentityOf(t.Profile)},
	}
}

// Merge возвращает новую meta с учётом события t. Исходная meta не меняется.
//
// status_history дописывается всегда, даже если статус повторяется.
// user_history дописывается, только если имя или username отличаются от последнего снимка.
func (m Meta) Merge(t Transition) Meta {
	statuses := make([]string, 0, len(m.StatusHistory)+1)
	statuses = append(statuses, m.StatusHistory...)
	statuses = append(statuses, t.NewStatus)

	identity := IdentityOf(t.Profile)
	users := make([]Identity, 0, len(m.UserHistory)+1)
	users = append(users, m.UserHistory...)
	if len(users) == 0 || !users[len(users)-1].Equal(identity) {
		users = append(users, identity)
	}

	return Meta{
		UserData:      t.Profile,
		StatusHistory: statuses,
		UserHistory:   users,
	}
}

// newMember строит запись для пользователя, которого ещё нет в базе.
func newMember(t Transition, joined bool) *Member {
	return &Member{
		UserID:    t.UserID,
		IsMember:  joined,
		FullName:  optional(t.Profile.FullName()),
		Username:  optional(t.Profile.Username),
		Meta:      NewMeta(t),
		CreatedAt: t.Date,
		UpdatedAt: t.Date,
	}
}

// applyTransition обновляет существующую запись. CreatedAt не трогаем.
func applyTransition(m *Member, t Transition, joined bool) *Member {
	updated := *m
	updated.IsMember = joined
	updated.FullName = optional(t.Profile.FullName())
	updated.Username = optional(t.Profile.Username)
	updated.Meta = m.Meta.Merge(t)
	updated.UpdatedAt = t.Date
	return &updated
}
