package protocol

// Client → server verbs.
const (
	VerbPing             = "ping"
	VerbChallengeSend    = "challenge:send"
	VerbChallengeAccept  = "challenge:accept"
	VerbChallengeDecline = "challenge:decline"
	VerbChallengeCancel  = "challenge:cancel"
	VerbJoinRoom         = "joinRoom"
	VerbMakeMove         = "makeMove"
	VerbSendMessage      = "sendMessage"
	VerbResignGame       = "resignGame"
	VerbOfferDraw        = "offerDraw"
	VerbRespondDraw      = "respondToDraw"
)

// Server → client verbs.
const (
	VerbPong               = "pong"
	VerbError              = "error"
	VerbChallengeSent      = "challenge:sent"
	VerbChallengeReceived  = "challenge:received"
	VerbChallengeDeclined  = "challenge:declined"
	VerbChallengeCancelled = "challenge:cancelled"
	VerbChallengeExpired   = "challenge:expired"
	VerbGameStarted        = "game:started"
	VerbGameJoined         = "gameJoined"
	VerbGameUpdate         = "gameUpdate"
	VerbNewMessage         = "newMessage"
	VerbPlayerDisconnected = "playerDisconnected"
	VerbPresenceState      = "presence:state"
	VerbPresenceDiff       = "presence:diff"
)
