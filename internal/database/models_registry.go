package database

import "playhub/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.RoomBan{},
		&models.ActivationHash{},
		&models.RefreshToken{},
		&models.GameRoom{},
		&models.GameMove{},
		&models.GameStats{},
		&models.GameRoomMessage{},
		&models.LobbyRoom{},
		&models.PlayerDisconnect{},
		&models.UserMute{},
		&models.OAuthClient{},
		&models.Scope{},
		&models.APIProduct{},
		&models.ClientProductGrant{},
		&models.ClientScopeGrant{},
		&models.ConsentGrant{},
		&models.AuthorizationCode{},
		&models.AccessToken{},
		&models.ResourceRefreshToken{},
		&models.Gallery{},
		&models.Upload{},
		&models.ImageVariant{},
		&models.ChunkedSession{},
		&models.Job{},
		&models.Competition{},
		&models.CompetitionEntry{},
	}
}
