package usecases

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/fieldsync/internal/core/domain"
)

const (
	ProjectsHeader = "Project_ID,Contact_Name,Contact_Email,Citation,URL,Project_Name,Proprietary"
	SitesHeader    = "Site_ID,Site_Name,Latitude,Longitude,Elevation_mabsl,Address,City,State_or_Province,Country,Site_Comments"
	SamplesHeader  = "Sample_ID,Sample_ID_2,Site_ID,Type,Start_Date,Start_Time_Zone,Collection_Date,Collection_Time_Zone,Sample_Volume_ml,Collector_type,Phase,Depth_meters,Sample_Source,Sample_Ignore,Sample_Comments,Project_ID"

	DefaultDateLayout = "1/2/06"
	DefaultTimeLayout = "3:04 PM"
)

// Tables holds the three exported CSV documents.
type Tables struct {
	Projects string `json:"projects"`
	Sites    string `json:"sites"`
	Samples  string `json:"samples"`
}

// ExportService renders projects as CSV tables.
type ExportService struct {
	projects   *ProjectStore
	dateLayout string
	timeLayout string
}

// NewExportService creates an exporter. Empty layouts fall back to the
// short US date and time styles.
func NewExportService(projects *ProjectStore, dateLayout, timeLayout string) *ExportService {
	if dateLayout == "" {
		dateLayout = DefaultDateLayout
	}
	if timeLayout == "" {
		timeLayout = DefaultTimeLayout
	}
	return &ExportService{projects: projects, dateLayout: dateLayout, timeLayout: timeLayout}
}

// ExportSelected exports the projects with the given IDs, in that order.
// An empty list exports every project.
func (s *ExportService) ExportSelected(ids []string) (Tables, error) {
	if len(ids) == 0 {
		return s.Export(s.projects.List()), nil
	}
	selected := make([]domain.Project, 0, len(ids))
	for _, id := range ids {
		p, err := s.projects.Get(id)
		if err != nil {
			return Tables{}, err
		}
		selected = append(selected, p)
	}
	return s.Export(selected), nil
}

// Export renders the given projects. Each table is a header line followed by
// one line per record. Text fields are always quoted with embedded quotes
// doubled; unset measures and an unset start time are empty fields.
func (s *ExportService) Export(projects []domain.Project) Tables {
	var pb, sb, xb strings.Builder
	pb.WriteString(ProjectsHeader + "\n")
	sb.WriteString(SitesHeader + "\n")
	xb.WriteString(SamplesHeader + "\n")

	for _, p := range projects {
		writeRow(&pb,
			quote(p.ID), quote(p.ContactName), quote(p.ContactEmail),
			quote(p.Citation), quote(p.URL), quote(p.Name), "",
		)
		for _, site := range p.Sites {
			writeRow(&sb,
				quote(site.ID), quote(site.Name),
				formatFloat(site.Location.Lat), formatFloat(site.Location.Lon),
				site.Elevation.Format(),
				quote(site.Address), quote(site.City), quote(site.StateOrProvince),
				quote(site.Country), quote(site.Comments),
			)
		}
		for _, smp := range p.Samples {
			startDate, startZone := "", ""
			if st := smp.StartedAt; st != nil && domain.StartTimeFromLegacy(*st) != nil {
				startDate, startZone = s.dateTime(*st)
			}
			collDate, collZone := s.dateTime(smp.CollectedAt)
			writeRow(&xb,
				quote(smp.ID), "", quote(smp.SiteID), smp.Type.String(),
				startDate, startZone, collDate, collZone,
				smp.Volume.Format(), "", smp.Phase.String(), smp.Depth.Format(),
				"", "", quote(smp.Comments), quote(p.ID),
			)
		}
	}
	return Tables{Projects: pb.String(), Sites: sb.String(), Samples: xb.String()}
}

// dateTime renders t in its own zone as "<date> <time>" plus the UTC offset in hours.
func (s *ExportService) dateTime(t time.Time) (string, string) {
	_, offset := t.Zone()
	return quote(t.Format(s.dateLayout) + " " + t.Format(s.timeLayout)),
		strconv.FormatFloat(float64(offset)/3600, 'f', -1, 64)
}

func writeRow(b *strings.Builder, fields ...string) {
	b.WriteString(strings.Join(fields, ","))
	b.WriteByte('\n')
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ExportFilename returns the download name for one table.
func ExportFilename(table string, at time.Time) string {
	return fmt.Sprintf("%s_%s.csv", table, at.UTC().Format("20060102T150405Z"))
}
