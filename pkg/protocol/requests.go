package protocol

type ChallengeSendRequest struct {
	ChallengedID string `json:"challengedId"`
}

type ChallengeActRequest struct {
	ChallengeID string `json:"challengeId"`
}

type JoinRoomRequest struct {
	GameID string `json:"gameId"`
}

type MakeMoveRequest struct {
	GameID string    `json:"gameId"`
	Move   MoveInput `json:"move"`
	// Result lets the mover report a terminal outcome (checkmate, stalemate)
	// determined client-side, consistent with the relay-only legality boundary.
	Result string `json:"result,omitempty"`
}

type SendMessageRequest struct {
	GameID  string `json:"gameId"`
	Content string `json:"content"`
}

type ResignRequest struct {
	GameID string `json:"gameId"`
}

type OfferDrawRequest struct {
	GameID string `json:"gameId"`
}

type RespondDrawRequest struct {
	GameID string `json:"gameId"`
	Accept bool   `json:"accept"`
}
