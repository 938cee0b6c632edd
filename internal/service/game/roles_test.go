package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countRoles(roles []Role) map[Role]int {
	counts := make(map[Role]int)
	for _, r := range roles {
		counts[r]++
	}

	return counts
}

func TestRolePool_TwelveSeats(t *testing.T) {
	counts := countRoles(RolePool(12))

	assert.Equal(t, map[Role]int{
		ROLE_WEREWOLF: 2,
		ROLE_SEER:     1,
		ROLE_WITCH:    1,
		ROLE_HUNTER:   1,
		ROLE_VILLAGER: 7,
	}, counts)
}

func TestRolePool_SizedToSeats(t *testing.T) {
	for n := MIN_SEATS; n <= MAX_SEATS; n++ {
		pool := RolePool(n)
		counts := countRoles(pool)

		require.Len(t, pool, n)
		assert.GreaterOrEqual(t, counts[ROLE_WEREWOLF], 1, "seats=%d", n)
		assert.LessOrEqual(t, counts[ROLE_SEER]+counts[ROLE_WITCH]+counts[ROLE_HUNTER], 3, "seats=%d", n)
	}
}

func TestAssignRoles_TwelveSeatsEverySeatOnce(t *testing.T) {
	for range 20 {
		clock := newFakeClock()
		gm := newTestMachine(t, 12, clock)

		roles, err := gm.AssignRoles(nil)
		require.NoError(t, err)
		require.Len(t, roles, 12)

		pool := make([]Role, 0, 12)
		for seat := 1; seat <= 12; seat++ {
			role, ok := roles[seat]
			require.True(t, ok, "seat %d missing", seat)
			pool = append(pool, role)
		}

		assert.Equal(t, countRoles(RolePool(12)), countRoles(pool))
		assert.Equal(t, PHASE_ROLE_ASSIGNED, gm.State().Phase)
		assert.Equal(t, 1, gm.State().Round)
	}
}

func TestAssignRoles_PinnedSeatsKeepTheirRole(t *testing.T) {
	gm := newTestMachine(t, 12, newFakeClock())

	roles, err := gm.AssignRoles(standardPins)
	require.NoError(t, err)

	for seat, role := range standardPins {
		assert.Equal(t, role, roles[seat])
	}
	for seat := 6; seat <= 12; seat++ {
		assert.Equal(t, ROLE_VILLAGER, roles[seat])
	}
}

func TestAssignRoles_PinBeyondPoolRejected(t *testing.T) {
	gm := newTestMachine(t, 5, newFakeClock())

	// 5 人局只有一只狼
	_, err := gm.AssignRoles(map[int]Role{1: ROLE_WEREWOLF, 2: ROLE_WEREWOLF})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "role pool cannot cover")

	assert.Equal(t, PHASE_WAITING, gm.State().Phase)
	for _, p := range gm.ctx.Players {
		assert.Empty(t, p.Role)
	}
}

func TestAssignRoles_PinUnknownSeat(t *testing.T) {
	gm := newTestMachine(t, 6, newFakeClock())

	_, err := gm.AssignRoles(map[int]Role{9: ROLE_SEER})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAssignRoles_ConfigPins(t *testing.T) {
	gm := newTestMachine(t, 12, newFakeClock(), WithPinnedRoles(map[string]map[int]Role{
		"room-test": {7: ROLE_WITCH},
	}))

	roles, err := gm.AssignRoles(map[int]Role{8: ROLE_SEER})
	require.NoError(t, err)

	assert.Equal(t, ROLE_WITCH, roles[7])
	assert.Equal(t, ROLE_SEER, roles[8])
}

func TestAssignRoles_RejectedOnceStarted(t *testing.T) {
	gm := newTestMachine(t, 6, newFakeClock())

	_, err := gm.AssignRoles(nil)
	require.NoError(t, err)

	_, err = gm.AssignRoles(nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestInitRoleContexts(t *testing.T) {
	gm := newTestMachine(t, 12, newFakeClock())

	_, err := gm.AssignRoles(standardPins)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, gm.ctx.WerewolfContext.Teammates)
	assert.Empty(t, gm.ctx.SeerContext)
	assert.True(t, gm.ctx.WitchContext.HasSavePotion)
	assert.True(t, gm.ctx.WitchContext.HasPoisonPotion)
}
