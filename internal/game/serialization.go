package game

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/Farjord/dronewars-server/internal/game/targeting"
)

// checksum returns a SHA-256 hash over a canonical text rendering of the
// match state. Two instances that processed the same seed and the same
// ordered action stream produce the same checksum, which is how the mirror
// and the replayer detect divergence. Match ID and wall-clock fields are
// deliberately excluded: a replay runs under a different match ID and must
// still hash equal. Caller holds gs.mu.
func (gs *gameState) checksum() string {
	var b strings.Builder

	fmt.Fprintf(&b, "seed:%d\n", gs.seed)
	fmt.Fprintf(&b, "seq:%d\n", gs.seq)
	fmt.Fprintf(&b, "round:%d\n", gs.phases.RoundNumber())
	fmt.Fprintf(&b, "phase:%s\n", gs.phases.CurrentPhase().String())
	fmt.Fprintf(&b, "first:%s\n", gs.phases.FirstPlayer())
	fmt.Fprintf(&b, "active:%s\n", gs.phases.ActivePlayer())
	fmt.Fprintf(&b, "awaitingAck:%t\n", gs.awaitingAck)
	fmt.Fprintf(&b, "winner:%s\n", gs.winner)
	fmt.Fprintf(&b, "idCounter:%d\n", gs.idCounter)

	for _, id := range gs.playerOrder {
		gs.writePlayerRepr(&b, gs.players[id])
	}

	if gs.pending != nil {
		fmt.Fprintf(&b, "pending:%s|%d|%s|%d|%s\n",
			gs.pending.Token, int(gs.pending.Kind), gs.pending.PlayerID,
			gs.pending.Count, strings.Join(gs.pending.Choices, ","))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// writePlayerRepr appends one player's canonical representation. Every
// collection is rendered in a fixed order: deck and hand in slice order
// (both are deterministic under the seeded RNG), lanes and sections in their
// declared order, statuses sorted.
func (gs *gameState) writePlayerRepr(b *strings.Builder, p *internalPlayer) {
	fmt.Fprintf(b, "player:%s\n", p.PlayerID)
	fmt.Fprintf(b, " energy:%d momentum:%d shields:%d passed:%t deployed:%d attacks:%d acked:%t\n",
		p.Energy, p.Momentum, p.ShieldsToAllocate, p.Passed,
		p.DeployedThisRound, p.AttacksThisTurn, p.AckedFirstPlayer)

	fmt.Fprintf(b, " deck:")
	for _, c := range p.Deck {
		fmt.Fprintf(b, "%s=%s,", c.InstanceID, c.DefName)
	}
	fmt.Fprintf(b, "\n hand:")
	for _, c := range p.Hand {
		fmt.Fprintf(b, "%s=%s,", c.InstanceID, c.DefName)
	}
	fmt.Fprintf(b, "\n discard:")
	for _, c := range p.Discard {
		fmt.Fprintf(b, "%s=%s,", c.InstanceID, c.DefName)
	}
	b.WriteString("\n")

	for _, lane := range targeting.Lanes {
		fmt.Fprintf(b, " lane:%s\n", lane)
		for _, d := range p.Lanes[lane] {
			statuses := make([]string, 0)
			for _, kind := range d.Statuses.List() {
				statuses = append(statuses, fmt.Sprintf("%s=%d", kind, d.Statuses.Count(kind)))
			}
			fmt.Fprintf(b, "  drone:%s|%s|h%d|s%d|a%d|v%d|ex%t|%s\n",
				d.InstanceID, d.Name, d.Hull, d.Shields,
				d.stat("attack"), d.stat("speed"), d.Exhausted,
				strings.Join(statuses, ","))
		}
	}

	for _, name := range SectionOrder {
		s := p.Sections[name]
		fmt.Fprintf(b, " section:%s|h%d|s%d\n", s.Name, s.Hull, s.Shields)
	}

	used := make([]string, 0, len(p.UsedAbilities))
	for kind, ok := range p.UsedAbilities {
		if ok {
			used = append(used, string(kind))
		}
	}
	sort.Strings(used)
	fmt.Fprintf(b, " usedAbilities:%s\n", strings.Join(used, ","))
}
