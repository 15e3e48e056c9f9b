package mssql

// bootstrapSQL is run in order by Bootstrap. CREATE OR ALTER needs SQL Server
// 2016 SP1 or later.
var bootstrapSQL = []string{
	`IF OBJECT_ID(N'dbo.geoname_locations', N'U') IS NULL
CREATE TABLE dbo.geoname_locations (
	geoname_id             INT NOT NULL PRIMARY KEY,
	continent_code         NVARCHAR(2),
	city_name              NVARCHAR(200),
	country_iso_code       NVARCHAR(2) NOT NULL,
	country_name           NVARCHAR(200) NOT NULL,
	subdivision_1_iso_code NVARCHAR(3),
	subdivision_1_name     NVARCHAR(200),
	subdivision_2_iso_code NVARCHAR(3),
	subdivision_2_name     NVARCHAR(200)
)`,
	`IF OBJECT_ID(N'dbo.geoip_blocks', N'U') IS NULL
CREATE TABLE dbo.geoip_blocks (
	network     NVARCHAR(43) NOT NULL PRIMARY KEY,
	geoname_id  INT NOT NULL,
	postal_code NVARCHAR(20)
)`,
	`CREATE OR ALTER PROCEDURE dbo.add_geoname_location
	@geoname_id INT,
	@continent_code NVARCHAR(2),
	@city_name NVARCHAR(200),
	@country_iso_code NVARCHAR(2),
	@country_name NVARCHAR(200),
	@subdivision_1_iso_code NVARCHAR(3),
	@subdivision_1_name NVARCHAR(200),
	@subdivision_2_iso_code NVARCHAR(3),
	@subdivision_2_name NVARCHAR(200)
AS
BEGIN
	SET NOCOUNT ON;
	MERGE dbo.geoname_locations WITH (HOLDLOCK) AS t
	USING (SELECT @geoname_id AS geoname_id) AS s ON t.geoname_id = s.geoname_id
	WHEN MATCHED THEN UPDATE SET
		continent_code = @continent_code, city_name = @city_name,
		country_iso_code = @country_iso_code, country_name = @country_name,
		subdivision_1_iso_code = @subdivision_1_iso_code, subdivision_1_name = @subdivision_1_name,
		subdivision_2_iso_code = @subdivision_2_iso_code, subdivision_2_name = @subdivision_2_name
	WHEN NOT MATCHED THEN INSERT VALUES (
		@geoname_id, @continent_code, @city_name, @country_iso_code, @country_name,
		@subdivision_1_iso_code, @subdivision_1_name, @subdivision_2_iso_code, @subdivision_2_name);
END`,
	`CREATE OR ALTER PROCEDURE dbo.add_geoip
	@network NVARCHAR(43),
	@geoname_id INT,
	@postal_code NVARCHAR(20)
AS
BEGIN
	SET NOCOUNT ON;
	MERGE dbo.geoip_blocks WITH (HOLDLOCK) AS t
	USING (SELECT @network AS network) AS s ON t.network = s.network
	WHEN MATCHED THEN UPDATE SET geoname_id = @geoname_id, postal_code = @postal_code
	WHEN NOT MATCHED THEN INSERT VALUES (@network, @geoname_id, @postal_code);
END`,
}
