package infrastructure

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fodExport = `FOD_ID,FIRE_NAME,FIRE_YEAR,DISCOVERY_DATE,STAT_CAUSE_DESCR,FIRE_SIZE,FIRE_SIZE_CLASS,LATITUDE,LONGITUDE,STATE,FIPS_NAME,NWCG_REPORTING_AGENCY
1,CAMP,2018,2018-11-08,Power generation/transmission/distribution,153336,g,39.81,-121.44,ca,Butte,USFS
2,POWER,2004,10/06/2004,Equipment Use,16,C,38.93,-120.40,CA,Eldorado,FS
3,NO COORDS,2005,2005-01-01,Lightning,1,A,,-120.1,CA,Placer,FS
4,BAD SIZE,2007,2007-07-01,Arson,-5,B,36.1,not-a-number,CA,Fresno,BLM
5,NEGATIVE,2009,garbage,Arson,-5,B,36.1,-119.7,CA,Fresno,BLM
`

func TestReadIncidents_FODExport(t *testing.T) {
	reader := NewIncidentReader(zap.NewNop())

	fires, stats, err := reader.ReadIncidents(strings.NewReader(fodExport))
	require.NoError(t, err)

	assert.Equal(t, ImportStats{Rows: 5, Kept: 3, Dropped: 2}, stats)
	require.Len(t, fires, 3)

	camp := fires[0]
	assert.Equal(t, "CAMP", camp.FireName)
	assert.Equal(t, 2018, camp.FireYear)
	assert.Equal(t, "CA", camp.State)
	assert.Equal(t, "G", camp.FireSizeClass)
	assert.Equal(t, "Butte", camp.County)
	assert.Equal(t, "USFS", camp.ReportingAgency)
	assert.Equal(t, time.Date(2018, 11, 8, 0, 0, 0, 0, time.UTC), camp.DiscoveryDate)
	require.NotNil(t, camp.FireSizeAcres)
	assert.Equal(t, 153336.0, *camp.FireSizeAcres)

	assert.Equal(t, time.Date(2004, 10, 6, 0, 0, 0, 0, time.UTC), fires[1].DiscoveryDate)

	negative := fires[2]
	assert.Nil(t, negative.FireSizeAcres)
	assert.True(t, negative.DiscoveryDate.IsZero())
}

func TestReadIncidents_InvalidFiles(t *testing.T) {
	reader := NewIncidentReader(zap.NewNop())

	tests := map[string]string{
		"empty":           "",
		"missing columns": "FIRE_NAME,STATE\nCAMP,CA\n",
		"broken quoting":  "FIRE_YEAR,LATITUDE,LONGITUDE\n\"2018,39.8,-121.4\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := reader.ReadIncidents(strings.NewReader(content))
			assert.ErrorIs(t, err, ErrInvalidFileFormat)
		})
	}
}

func TestReadIncidentsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fires.csv")
	require.NoError(t, os.WriteFile(path, []byte("fire_year,latitude,longitude,fire_size_acres\n2020,40.1,-122.3,12.5\n"), 0o644))

	fires, stats, err := NewIncidentReader(zap.NewNop()).ReadIncidentsFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Kept)
	assert.Equal(t, 12.5, *fires[0].FireSizeAcres)

	_, _, err = NewIncidentReader(zap.NewNop()).ReadIncidentsFromFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
