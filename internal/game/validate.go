package game

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/chess-arena/pkg/protocol"
)

// strictOutcome is a terminal result determined by the rules engine rather
// than claimed by the client.
type strictOutcome struct {
	winner protocol.Color // empty for a draw
	reason string
}

func (o *strictOutcome) winnerID(g *Game) string {
	if o.winner == "" {
		return WinnerDraw
	}
	return g.profileFor(o.winner).ID
}

// applyStrict validates input against the position reconstructed from the
// prior UCI moves and returns the move's UCI form plus any terminal outcome.
func applyStrict(prior []string, input protocol.MoveInput) (string, *strictOutcome, error) {
	uci, ok := uciFromInput(input)
	if !ok {
		return "", nil, ErrIllegalMove
	}
	board := reconstruct(prior)
	if board == nil {
		return "", nil, ErrIllegalMove
	}
	if err := board.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return "", nil, ErrIllegalMove
	}

	switch board.Outcome() {
	case nchess.WhiteWon:
		return uci, &strictOutcome{winner: protocol.White, reason: ReasonCheckmate}, nil
	case nchess.BlackWon:
		return uci, &strictOutcome{winner: protocol.Black, reason: ReasonCheckmate}, nil
	case nchess.Draw:
		reason := ReasonStalemate
		if board.Method() != nchess.Stalemate {
			reason = "draw"
		}
		return uci, &strictOutcome{reason: reason}, nil
	}
	return uci, nil, nil
}

// reconstruct rebuilds the board by replaying the stored UCI moves from the
// start position.
func reconstruct(moves []string) *nchess.Game {
	board := nchess.NewGame()
	for _, mv := range moves {
		if err := board.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil
		}
	}
	return board
}

// uciFromInput translates coordinate squares to UCI. Row 0 is rank 1
// (white's back rank), col 0 is file a. Pawn promotions default to queen
// since the wire move carries no promotion piece.
func uciFromInput(input protocol.MoveInput) (string, bool) {
	from, ok := squareName(input.From)
	if !ok {
		return "", false
	}
	to, ok := squareName(input.To)
	if !ok {
		return "", false
	}
	uci := from + to
	if isPawn(input.Piece) && (input.To.Row == 0 || input.To.Row == 7) {
		uci += "q"
	}
	return uci, true
}

func squareName(sq protocol.Square) (string, bool) {
	if sq.Row < 0 || sq.Row > 7 || sq.Col < 0 || sq.Col > 7 {
		return "", false
	}
	return string([]byte{byte('a' + sq.Col), byte('1' + sq.Row)}), true
}

func isPawn(piece string) bool {
	p := strings.ToLower(strings.TrimSpace(piece))
	return p == "pawn" || p == "p"
}
