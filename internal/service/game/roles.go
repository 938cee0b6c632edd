package game

import (
	"maps"
	"slices"

	"go.uber.org/zap"
)

const (
	MIN_SEATS = 3
	MAX_SEATS = 30
)

// 12 人局的标准配置：2 狼、预言家、女巫、猎人、7 村民
var defaultRoles12P = []Role{
	ROLE_WEREWOLF, ROLE_WEREWOLF,
	ROLE_SEER, ROLE_WITCH, ROLE_HUNTER,
	ROLE_VILLAGER, ROLE_VILLAGER, ROLE_VILLAGER, ROLE_VILLAGER,
	ROLE_VILLAGER, ROLE_VILLAGER, ROLE_VILLAGER,
}

// RolePool 按座位数构造角色池，长度恒等于座位数
func RolePool(seatCount int) []Role {
	if seatCount == 12 {
		return slices.Clone(defaultRoles12P)
	}

	werewolves := max(1, seatCount/6)
	specials := min(3, seatCount/4)
	villagers := seatCount - werewolves - specials

	pool := make([]Role, 0, seatCount)
	for range werewolves {
		pool = append(pool, ROLE_WEREWOLF)
	}
	pool = append(pool, []Role{ROLE_SEER, ROLE_WITCH, ROLE_HUNTER}[:specials]...)
	for range villagers {
		pool = append(pool, ROLE_VILLAGER)
	}

	return pool
}

func validSeatCount(seatCount int) error {
	if seatCount < MIN_SEATS || seatCount > MAX_SEATS {
		return invalidf("seat count must be between %d and %d, got %d", MIN_SEATS, MAX_SEATS, seatCount)
	}

	return nil
}

// assignRoles 先放置固定角色，再把剩余角色洗牌后分给其余座位
func assignRoles(ctx *GameContext, pinned map[int]Role) error {
	pool := RolePool(ctx.SeatCount())

	for _, seat := range slices.Sorted(maps.Keys(pinned)) {
		role := pinned[seat]

		if _, ok := ctx.Players[seat]; !ok {
			return invalidf("pinned seat %d does not exist", seat)
		}
		if _, ok := ParseRole(string(role)); !ok {
			return invalidf("pinned role %q for seat %d is unknown", role, seat)
		}

		idx := slices.Index(pool, role)
		if idx < 0 {
			return invalidf("role pool cannot cover pinned role %s for seat %d", role, seat)
		}
		pool = slices.Delete(pool, idx, idx+1)
	}

	ctx.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	assigned := make(map[int]Role, ctx.SeatCount())
	next := 0

	for _, seat := range ctx.Seats() {
		if role, ok := pinned[seat]; ok {
			assigned[seat] = role
			continue
		}

		if next >= len(pool) {
			return invalidf("role pool exhausted before seat %d", seat)
		}

		assigned[seat] = pool[next]
		next++
	}

	// 校验全部通过后才写入，失败时房间保持原状
	for seat, role := range assigned {
		ctx.Players[seat].Role = role
	}

	if len(pinned) > 0 {
		zap.L().Info(
			"使用固定角色分配",
			zap.String("room_id", ctx.RoomID),
			zap.Any("pinned", pinned),
		)
	}

	return nil
}

// initRoleContexts 初始化各角色的视角信息
func initRoleContexts(ctx *GameContext) {
	ctx.WerewolfContext = &WerewolfContext{
		Teammates: ctx.GetAliveByRole(ROLE_WEREWOLF),
	}

	ctx.SeerContext = make([]SeerCheck, 0)

	ctx.WitchContext = &WitchContext{
		HasSavePotion:   true,
		HasPoisonPotion: true,
		SavedHistory:    make([]int, 0),
		PoisonedHistory: make([]int, 0),
	}
}
