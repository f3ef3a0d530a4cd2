package schema

const (
	SongData = "song_data"
	LogData  = "log_data"

	Songs               = "songs"
	Artists             = "artists"
	Users               = "users"
	Time                = "time"
	Songplays           = "songplays"
	SongplaysQuarantine = "songplays_quarantine"
)

// Raw describes the line-delimited JSON inputs. Keys missing from a record read as NULL.
var Raw = &Schema{
	Name:        "raw",
	Description: "Line-delimited JSON inputs: one song catalog record per file, one app event per line.",
	Tables: []TableInfo{
		{
			Name:        SongData,
			Description: "Song catalog records, one JSON object per file, nested song_data/A/B/C/*.json.",
			Columns: []ColumnInfo{
				{Name: "num_songs", Type: "BIGINT"},
				{Name: "artist_id", Type: "VARCHAR"},
				{Name: "artist_latitude", Type: "DOUBLE"},
				{Name: "artist_longitude", Type: "DOUBLE"},
				{Name: "artist_location", Type: "VARCHAR"},
				{Name: "artist_name", Type: "VARCHAR"},
				{Name: "song_id", Type: "VARCHAR"},
				{Name: "title", Type: "VARCHAR"},
				{Name: "duration", Type: "DOUBLE"},
				{Name: "year", Type: "BIGINT"},
			},
		},
		{
			Name:        LogData,
			Description: "App activity events, nested log_data/YYYY/MM/*.json.",
			Columns: []ColumnInfo{
				{Name: "artist", Type: "VARCHAR"},
				{Name: "auth", Type: "VARCHAR"},
				{Name: "firstName", Type: "VARCHAR"},
				{Name: "gender", Type: "VARCHAR"},
				{Name: "itemInSession", Type: "BIGINT"},
				{Name: "lastName", Type: "VARCHAR"},
				{Name: "length", Type: "DOUBLE"},
				{Name: "level", Type: "VARCHAR"},
				{Name: "location", Type: "VARCHAR"},
				{Name: "method", Type: "VARCHAR"},
				{Name: "page", Type: "VARCHAR"},
				{Name: "registration", Type: "DOUBLE"},
				{Name: "sessionId", Type: "BIGINT"},
				{Name: "song", Type: "VARCHAR"},
				{Name: "status", Type: "BIGINT"},
				{Name: "ts", Type: "BIGINT", Description: "Event time, epoch milliseconds"},
				{Name: "userAgent", Type: "VARCHAR"},
				{Name: "userId", Type: "VARCHAR"},
			},
		},
	},
}

// Star describes the tables written to the output root.
var Star = &Schema{
	Name: "star",
	Description: `
Star schema over song play events.

Fact table: songplays, one row per NextSong event whose ts has a time row.
Dimensions: songs, artists, users, time.

JOINS:
- songplays.song_id = songs.song_id (nullable, matched by exact title)
- songplays.artist_id = artists.artist_id (nullable, matched by exact artist name)
- songplays.user_id = users.user_id
- songplays.start_time = time.start_time
`,
	Tables: []TableInfo{
		{
			Name:        Songs,
			Description: "One row per song_id.",
			Columns: []ColumnInfo{
				{Name: "song_id", Type: "VARCHAR", Description: "Song identifier (primary key)"},
				{Name: "title", Type: "VARCHAR"},
				{Name: "artist_id", Type: "VARCHAR"},
				{Name: "year", Type: "BIGINT"},
				{Name: "duration", Type: "DOUBLE", Description: "Seconds"},
			},
			PartitionBy: []string{"year", "artist_id"},
		},
		{
			Name:        Artists,
			Description: "One row per artist_id.",
			Columns: []ColumnInfo{
				{Name: "artist_id", Type: "VARCHAR", Description: "Artist identifier (primary key)"},
				{Name: "name", Type: "VARCHAR"},
				{Name: "location", Type: "VARCHAR"},
				{Name: "latitude", Type: "DOUBLE"},
				{Name: "longitude", Type: "DOUBLE"},
			},
		},
		{
			Name:        Users,
			Description: "One row per user_id with attributes from the user's latest play event.",
			Columns: []ColumnInfo{
				{Name: "user_id", Type: "VARCHAR", Description: "User identifier (primary key)"},
				{Name: "first_name", Type: "VARCHAR"},
				{Name: "last_name", Type: "VARCHAR"},
				{Name: "gender", Type: "VARCHAR"},
				{Name: "level", Type: "VARCHAR", Description: "free or paid"},
			},
		},
		{
			Name:        Time,
			Description: "One row per distinct event timestamp; calendar fields in UTC.",
			Columns: []ColumnInfo{
				{Name: "start_time", Type: "BIGINT", Description: "Epoch milliseconds (primary key)"},
				{Name: "hour", Type: "BIGINT"},
				{Name: "day", Type: "BIGINT", Description: "Day of month"},
				{Name: "week", Type: "BIGINT", Description: "ISO week of year"},
				{Name: "month", Type: "BIGINT"},
				{Name: "year", Type: "BIGINT"},
				{Name: "weekday", Type: "BIGINT", Description: "1 = Sunday ... 7 = Saturday"},
			},
			PartitionBy: []string{"year", "month"},
		},
		{
			Name:        Songplays,
			Description: "One row per NextSong event.",
			Columns: []ColumnInfo{
				{Name: "songplay_id", Type: "BIGINT", Description: "Synthetic id, unique but not contiguous"},
				{Name: "start_time", Type: "BIGINT"},
				{Name: "user_id", Type: "VARCHAR"},
				{Name: "level", Type: "VARCHAR"},
				{Name: "song_id", Type: "VARCHAR", Description: "NULL when no song title matched"},
				{Name: "artist_id", Type: "VARCHAR", Description: "NULL when no artist name matched"},
				{Name: "session_id", Type: "BIGINT"},
				{Name: "location", Type: "VARCHAR"},
				{Name: "user_agent", Type: "VARCHAR"},
				{Name: "year", Type: "BIGINT"},
				{Name: "month", Type: "BIGINT"},
			},
			PartitionBy: []string{"year", "month"},
		},
		{
			Name:        SongplaysQuarantine,
			Description: "Play events that missed a natural-key match, one row per event and reason.",
			Columns: []ColumnInfo{
				{Name: "reason", Type: "VARCHAR", Description: "song_unmatched, artist_unmatched or time_unmatched"},
				{Name: "start_time", Type: "BIGINT"},
				{Name: "user_id", Type: "VARCHAR"},
				{Name: "session_id", Type: "BIGINT"},
				{Name: "song", Type: "VARCHAR"},
				{Name: "artist", Type: "VARCHAR"},
			},
			PartitionBy: []string{"reason"},
		},
	},
}
